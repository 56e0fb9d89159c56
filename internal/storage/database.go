package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Ananth-NQI/salonbook-backend/internal/models"
)

// DatabaseStore implements Store on top of gorm (PostgreSQL in production).
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a store backed by db. The connection should be
// opened with TranslateError enabled so unique violations map to
// gorm.ErrDuplicatedKey.
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Customer operations
func (d *DatabaseStore) FindCustomerByMobile(ctx context.Context, mobile string) (*models.Customer, error) {
	var c models.Customer
	err := d.db.WithContext(ctx).
		Where("mobile = ? AND is_archived = ?", mobile, false).
		Order("id asc").
		First(&c).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (d *DatabaseStore) GetCustomer(ctx context.Context, id uint) (*models.Customer, error) {
	var c models.Customer
	if err := d.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (d *DatabaseStore) CreateCustomer(ctx context.Context, name, mobile string) (*models.Customer, error) {
	c := &models.Customer{Name: name, Mobile: mobile}
	if err := d.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return c, nil
}

func (d *DatabaseStore) UpdateCustomerEmail(ctx context.Context, customerID uint, email string) error {
	res := d.db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("id = ?", customerID).
		Update("email", email)
	if res.Error != nil {
		return fmt.Errorf("update customer email: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Staff and service operations
func (d *DatabaseStore) ListActiveStaff(ctx context.Context) ([]models.Staff, error) {
	var staff []models.Staff
	err := d.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id asc").
		Find(&staff).Error
	if err != nil {
		return nil, fmt.Errorf("list active staff: %w", err)
	}
	return staff, nil
}

func (d *DatabaseStore) ListActiveServices(ctx context.Context) ([]models.Service, error) {
	var services []models.Service
	err := d.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id asc").
		Find(&services).Error
	if err != nil {
		return nil, fmt.Errorf("list active services: %w", err)
	}
	return services, nil
}

func (d *DatabaseStore) GetService(ctx context.Context, id uint) (*models.Service, error) {
	var s models.Service
	if err := d.db.WithContext(ctx).First(&s, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (d *DatabaseStore) CreateStaff(ctx context.Context, staff *models.Staff) error {
	return d.db.WithContext(ctx).Create(staff).Error
}

func (d *DatabaseStore) CreateService(ctx context.Context, service *models.Service) error {
	return d.db.WithContext(ctx).Create(service).Error
}

func (d *DatabaseStore) UpdateService(ctx context.Context, service *models.Service) error {
	res := d.db.WithContext(ctx).Model(service).
		Select("name", "description", "price", "duration", "is_active").
		Updates(service)
	if res.Error != nil {
		return fmt.Errorf("update service: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *DatabaseStore) UpdateStaff(ctx context.Context, staff *models.Staff) error {
	res := d.db.WithContext(ctx).Model(staff).
		Select("name", "email", "mobile", "specialization", "is_active").
		Updates(staff)
	if res.Error != nil {
		return fmt.Errorf("update staff: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Session operations
func (d *DatabaseStore) GetActiveSession(ctx context.Context, identity string) (*models.ConversationSession, error) {
	var s models.ConversationSession
	err := d.db.WithContext(ctx).
		Where("identity = ? AND active = ?", identity, true).
		First(&s).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (d *DatabaseStore) CreateSession(ctx context.Context, session *models.ConversationSession) error {
	session.Version = 0
	err := d.db.WithContext(ctx).Create(session).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrActiveSessionExists
	}
	return err
}

// SaveSession writes the session only if its version is unchanged since it
// was read, then bumps the version.
func (d *DatabaseStore) SaveSession(ctx context.Context, session *models.ConversationSession) error {
	next := session.Clone()
	next.Version = session.Version + 1

	res := d.db.WithContext(ctx).
		Model(next).
		Where("version = ?", session.Version).
		Select("step", "data", "customer_id", "appointment_id", "active", "version", "updated_at").
		Updates(next)
	if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return ErrActiveSessionExists
	}
	if res.Error != nil {
		return fmt.Errorf("save session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}

	session.Version = next.Version
	session.UpdatedAt = next.UpdatedAt
	return nil
}

func (d *DatabaseStore) ListSessionsByIdentity(ctx context.Context, identity string) ([]*models.ConversationSession, error) {
	var sessions []*models.ConversationSession
	err := d.db.WithContext(ctx).
		Where("identity = ?", identity).
		Order("id asc").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

func (d *DatabaseStore) ListIdleSessions(ctx context.Context, idleSince time.Time) ([]*models.ConversationSession, error) {
	var sessions []*models.ConversationSession
	err := d.db.WithContext(ctx).
		Where("active = ? AND updated_at < ?", true, idleSince).
		Order("id asc").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("list idle sessions: %w", err)
	}
	return sessions, nil
}

func (d *DatabaseStore) CountActiveSessions(ctx context.Context) (int64, error) {
	var n int64
	err := d.db.WithContext(ctx).
		Model(&models.ConversationSession{}).
		Where("active = ?", true).
		Count(&n).Error
	return n, err
}

// Appointment operations
func (d *DatabaseStore) CreateAppointment(ctx context.Context, appointment *models.Appointment) error {
	if appointment.Status == "" {
		appointment.Status = models.AppointmentStatusScheduled
	}
	if err := d.db.WithContext(ctx).Omit("Services").Create(appointment).Error; err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}
	return nil
}

func (d *DatabaseStore) CreateAppointmentServiceLine(ctx context.Context, line *models.AppointmentServiceLine) error {
	if err := d.db.WithContext(ctx).Create(line).Error; err != nil {
		return fmt.Errorf("create appointment service line: %w", err)
	}
	return nil
}

func (d *DatabaseStore) ListAppointmentsByCustomer(ctx context.Context, customerID uint) ([]models.Appointment, error) {
	var appointments []models.Appointment
	err := d.db.WithContext(ctx).
		Preload("Services").
		Where("customer_id = ?", customerID).
		Order("id asc").
		Find(&appointments).Error
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appointments, nil
}

func (d *DatabaseStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&DatabaseStore{db: tx})
	})
}

func (d *DatabaseStore) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
