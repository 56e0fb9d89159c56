package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Ananth-NQI/salonbook-backend/internal/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned by SaveSession when the session was
	// modified after it was read.
	ErrVersionConflict = errors.New("session version conflict")
	// ErrActiveSessionExists is returned by CreateSession when the identity
	// already has an active session.
	ErrActiveSessionExists = errors.New("active session already exists")
)

// Store defines the interface for storage operations
type Store interface {
	// Directory lookups
	FindCustomerByMobile(ctx context.Context, mobile string) (*models.Customer, error)
	GetCustomer(ctx context.Context, id uint) (*models.Customer, error)
	CreateCustomer(ctx context.Context, name, mobile string) (*models.Customer, error)
	UpdateCustomerEmail(ctx context.Context, customerID uint, email string) error
	ListActiveStaff(ctx context.Context) ([]models.Staff, error)
	ListActiveServices(ctx context.Context) ([]models.Service, error)
	GetService(ctx context.Context, id uint) (*models.Service, error)

	// Directory maintenance (seeding, admin)
	CreateStaff(ctx context.Context, staff *models.Staff) error
	CreateService(ctx context.Context, service *models.Service) error
	UpdateStaff(ctx context.Context, staff *models.Staff) error
	UpdateService(ctx context.Context, service *models.Service) error

	// Session operations
	GetActiveSession(ctx context.Context, identity string) (*models.ConversationSession, error)
	CreateSession(ctx context.Context, session *models.ConversationSession) error
	SaveSession(ctx context.Context, session *models.ConversationSession) error
	ListSessionsByIdentity(ctx context.Context, identity string) ([]*models.ConversationSession, error)
	ListIdleSessions(ctx context.Context, idleSince time.Time) ([]*models.ConversationSession, error)
	CountActiveSessions(ctx context.Context) (int64, error)

	// Appointment operations
	CreateAppointment(ctx context.Context, appointment *models.Appointment) error
	CreateAppointmentServiceLine(ctx context.Context, line *models.AppointmentServiceLine) error
	ListAppointmentsByCustomer(ctx context.Context, customerID uint) ([]models.Appointment, error)

	// WithTx runs fn inside a transaction. fn must use the Store it is
	// given. Any error returned by fn rolls back every write made through it.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	Ping(ctx context.Context) error
}
