package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Ananth-NQI/salonbook-backend/internal/models"
)

// MemoryStore holds all data in memory. It is used by tests and by the
// chat command when USE_MEMORY_STORE is set.
type MemoryStore struct {
	mu sync.RWMutex
	// txMu serializes transactions so a rollback never discards writes
	// made by another transaction.
	txMu sync.Mutex

	customers    map[uint]*models.Customer
	staff        map[uint]*models.Staff
	services     map[uint]*models.Service
	sessions     map[uint]*models.ConversationSession
	appointments map[uint]*models.Appointment
	lines        map[uint]*models.AppointmentServiceLine

	// Counters for ID generation
	customerCounter    uint
	staffCounter       uint
	serviceCounter     uint
	sessionCounter     uint
	appointmentCounter uint
	lineCounter        uint

	now func() time.Time
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		customers:    make(map[uint]*models.Customer),
		staff:        make(map[uint]*models.Staff),
		services:     make(map[uint]*models.Service),
		sessions:     make(map[uint]*models.ConversationSession),
		appointments: make(map[uint]*models.Appointment),
		lines:        make(map[uint]*models.AppointmentServiceLine),
		now:          time.Now,
	}
}

// SetNow overrides the timestamp source used for CreatedAt/UpdatedAt.
func (m *MemoryStore) SetNow(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Customer operations
func (m *MemoryStore) FindCustomerByMobile(_ context.Context, mobile string) (*models.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found *models.Customer
	for _, c := range m.customers {
		if c.Mobile == mobile && !c.IsArchived && (found == nil || c.ID < found.ID) {
			found = c
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	cp := *found
	return &cp, nil
}

func (m *MemoryStore) GetCustomer(_ context.Context, id uint) (*models.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.customers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) CreateCustomer(_ context.Context, name, mobile string) (*models.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.customerCounter++
	now := m.now()
	c := &models.Customer{Name: name, Mobile: mobile}
	c.ID = m.customerCounter
	c.CreatedAt = now
	c.UpdatedAt = now
	m.customers[c.ID] = c

	cp := *c
	return &cp, nil
}

func (m *MemoryStore) UpdateCustomerEmail(_ context.Context, customerID uint, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.customers[customerID]
	if !ok {
		return ErrNotFound
	}
	c.Email = email
	c.UpdatedAt = m.now()
	return nil
}

// Staff and service operations
func (m *MemoryStore) ListActiveStaff(_ context.Context) ([]models.Staff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Staff
	for _, s := range m.staff {
		if s.IsActive {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) ListActiveServices(_ context.Context) ([]models.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Service
	for _, s := range m.services {
		if s.IsActive {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) GetService(_ context.Context, id uint) (*models.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.services[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) CreateStaff(_ context.Context, staff *models.Staff) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.staffCounter++
	staff.ID = m.staffCounter
	staff.CreatedAt = m.now()
	staff.UpdatedAt = staff.CreatedAt
	cp := *staff
	m.staff[staff.ID] = &cp
	return nil
}

func (m *MemoryStore) CreateService(_ context.Context, service *models.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.serviceCounter++
	service.ID = m.serviceCounter
	service.CreatedAt = m.now()
	service.UpdatedAt = service.CreatedAt
	cp := *service
	m.services[service.ID] = &cp
	return nil
}

func (m *MemoryStore) UpdateStaff(_ context.Context, staff *models.Staff) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.staff[staff.ID]; !ok {
		return ErrNotFound
	}
	staff.UpdatedAt = m.now()
	cp := *staff
	m.staff[staff.ID] = &cp
	return nil
}

func (m *MemoryStore) UpdateService(_ context.Context, service *models.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.services[service.ID]; !ok {
		return ErrNotFound
	}
	service.UpdatedAt = m.now()
	cp := *service
	m.services[service.ID] = &cp
	return nil
}

// Session operations
func (m *MemoryStore) GetActiveSession(_ context.Context, identity string) (*models.ConversationSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.sessions {
		if s.Identity == identity && s.Active {
			return s.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) CreateSession(_ context.Context, session *models.ConversationSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session.Active {
		for _, s := range m.sessions {
			if s.Identity == session.Identity && s.Active {
				return ErrActiveSessionExists
			}
		}
	}

	m.sessionCounter++
	now := m.now()
	session.ID = m.sessionCounter
	session.Version = 0
	session.CreatedAt = now
	session.UpdatedAt = now
	m.sessions[session.ID] = session.Clone()
	return nil
}

func (m *MemoryStore) SaveSession(_ context.Context, session *models.ConversationSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.sessions[session.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != session.Version {
		return ErrVersionConflict
	}
	if session.Active && !current.Active {
		for _, s := range m.sessions {
			if s.ID != session.ID && s.Identity == session.Identity && s.Active {
				return ErrActiveSessionExists
			}
		}
	}

	session.Version++
	session.UpdatedAt = m.now()
	m.sessions[session.ID] = session.Clone()
	return nil
}

func (m *MemoryStore) ListSessionsByIdentity(_ context.Context, identity string) ([]*models.ConversationSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.ConversationSession
	for _, s := range m.sessions {
		if s.Identity == identity {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) ListIdleSessions(_ context.Context, idleSince time.Time) ([]*models.ConversationSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.ConversationSession
	for _, s := range m.sessions {
		if s.Active && s.UpdatedAt.Before(idleSince) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) CountActiveSessions(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, s := range m.sessions {
		if s.Active {
			n++
		}
	}
	return n, nil
}

// Appointment operations
func (m *MemoryStore) CreateAppointment(_ context.Context, appointment *models.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.customers[appointment.CustomerID]; !ok {
		return ErrNotFound
	}
	if _, ok := m.staff[appointment.StaffID]; !ok {
		return ErrNotFound
	}

	m.appointmentCounter++
	appointment.ID = m.appointmentCounter
	appointment.CreatedAt = m.now()
	appointment.UpdatedAt = appointment.CreatedAt
	if appointment.Status == "" {
		appointment.Status = models.AppointmentStatusScheduled
	}
	cp := *appointment
	cp.Services = nil
	m.appointments[appointment.ID] = &cp
	return nil
}

func (m *MemoryStore) CreateAppointmentServiceLine(_ context.Context, line *models.AppointmentServiceLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.appointments[line.AppointmentID]; !ok {
		return ErrNotFound
	}
	if _, ok := m.services[line.ServiceID]; !ok {
		return ErrNotFound
	}

	m.lineCounter++
	line.ID = m.lineCounter
	cp := *line
	m.lines[line.ID] = &cp
	return nil
}

func (m *MemoryStore) ListAppointmentsByCustomer(_ context.Context, customerID uint) ([]models.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Appointment
	for _, a := range m.appointments {
		if a.CustomerID != customerID {
			continue
		}
		cp := *a
		cp.Services = nil
		for _, l := range m.lines {
			if l.AppointmentID == a.ID {
				cp.Services = append(cp.Services, *l)
			}
		}
		sort.Slice(cp.Services, func(i, j int) bool { return cp.Services[i].ID < cp.Services[j].ID })
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// WithTx snapshots the store, runs fn and restores the snapshot if fn fails.
func (m *MemoryStore) WithTx(_ context.Context, fn func(tx Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}

type memorySnapshot struct {
	customers    map[uint]*models.Customer
	staff        map[uint]*models.Staff
	services     map[uint]*models.Service
	sessions     map[uint]*models.ConversationSession
	appointments map[uint]*models.Appointment
	lines        map[uint]*models.AppointmentServiceLine
	counters     [6]uint
}

func (m *MemoryStore) snapshot() memorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := memorySnapshot{
		customers:    make(map[uint]*models.Customer, len(m.customers)),
		staff:        make(map[uint]*models.Staff, len(m.staff)),
		services:     make(map[uint]*models.Service, len(m.services)),
		sessions:     make(map[uint]*models.ConversationSession, len(m.sessions)),
		appointments: make(map[uint]*models.Appointment, len(m.appointments)),
		lines:        make(map[uint]*models.AppointmentServiceLine, len(m.lines)),
		counters: [6]uint{m.customerCounter, m.staffCounter, m.serviceCounter,
			m.sessionCounter, m.appointmentCounter, m.lineCounter},
	}
	for k, v := range m.customers {
		cp := *v
		snap.customers[k] = &cp
	}
	for k, v := range m.staff {
		cp := *v
		snap.staff[k] = &cp
	}
	for k, v := range m.services {
		cp := *v
		snap.services[k] = &cp
	}
	for k, v := range m.sessions {
		snap.sessions[k] = v.Clone()
	}
	for k, v := range m.appointments {
		cp := *v
		snap.appointments[k] = &cp
	}
	for k, v := range m.lines {
		cp := *v
		snap.lines[k] = &cp
	}
	return snap
}

func (m *MemoryStore) restore(snap memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.customers = snap.customers
	m.staff = snap.staff
	m.services = snap.services
	m.sessions = snap.sessions
	m.appointments = snap.appointments
	m.lines = snap.lines
	m.customerCounter = snap.counters[0]
	m.staffCounter = snap.counters[1]
	m.serviceCounter = snap.counters[2]
	m.sessionCounter = snap.counters[3]
	m.appointmentCounter = snap.counters[4]
	m.lineCounter = snap.counters[5]
}
