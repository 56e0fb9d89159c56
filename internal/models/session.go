package models

import (
	"time"
)

// Step is a position in the booking conversation.
type Step string

const (
	StepStart     Step = "start"
	StepName      Step = "name"
	StepMobile    Step = "mobile"
	StepEmail     Step = "email"
	StepStaff     Step = "staff"
	StepDate      Step = "date"
	StepTime      Step = "time"
	StepServices  Step = "services"
	StepNotes     Step = "notes"
	StepConfirm   Step = "confirm"
	StepCompleted Step = "completed"
)

// Terminal reports whether no further input is accepted in this step.
func (s Step) Terminal() bool {
	return s == StepCompleted
}

// Valid reports whether s is one of the known steps.
func (s Step) Valid() bool {
	switch s {
	case StepStart, StepName, StepMobile, StepEmail, StepStaff, StepDate,
		StepTime, StepServices, StepNotes, StepConfirm, StepCompleted:
		return true
	}
	return false
}

// SelectedService is a service picked during the SERVICES step. Price is
// the price shown to the customer at selection time.
type SelectedService struct {
	ID    uint    `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// BookingData holds the fields collected so far in a conversation.
type BookingData struct {
	Name          string            `json:"name,omitempty"`
	Mobile        string            `json:"mobile,omitempty"`
	Email         string            `json:"email,omitempty"`
	StaffID       uint              `json:"staff_id,omitempty"`
	StaffName     string            `json:"staff_name,omitempty"`
	Date          string            `json:"date,omitempty"` // YYYY-MM-DD
	AppointmentAt *time.Time        `json:"appointment_at,omitempty"`
	Services      []SelectedService `json:"services,omitempty"`
	TotalPrice    float64           `json:"total_price,omitempty"`
	Notes         string            `json:"notes,omitempty"`

	// Ids behind the numbered options last shown to the customer.
	StaffOptions   []uint `json:"staff_options,omitempty"`
	ServiceOptions []uint `json:"service_options,omitempty"`
}

// ServiceIDs returns the ids of the selected services in selection order.
func (d BookingData) ServiceIDs() []uint {
	ids := make([]uint, 0, len(d.Services))
	for _, s := range d.Services {
		ids = append(ids, s.ID)
	}
	return ids
}

// ServiceNames returns the names of the selected services in selection order.
func (d BookingData) ServiceNames() []string {
	names := make([]string, 0, len(d.Services))
	for _, s := range d.Services {
		names = append(names, s.Name)
	}
	return names
}

// ConversationSession stores the state of one identity's booking conversation.
// At most one session per identity is active; finished sessions are kept for
// history with Active=false.
type ConversationSession struct {
	ID            uint        `json:"id" gorm:"primaryKey"`
	Identity      string      `json:"identity" gorm:"size:20;not null;index;index:idx_conversation_active_identity,unique,where:active = true"`
	Step          Step        `json:"step" gorm:"size:20;not null;default:start"`
	Data          BookingData `json:"data" gorm:"type:text;serializer:json"`
	CustomerID    *uint       `json:"customer_id"`
	AppointmentID *uint       `json:"appointment_id"`
	Active        bool        `json:"active" gorm:"not null;default:true;index"`
	Version       int         `json:"version" gorm:"not null;default:0"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// TableName keeps the table name used by the existing salon database.
func (ConversationSession) TableName() string {
	return "whatsapp_conversations"
}

// Clone returns a deep copy of the session.
func (s *ConversationSession) Clone() *ConversationSession {
	c := *s
	if s.CustomerID != nil {
		id := *s.CustomerID
		c.CustomerID = &id
	}
	if s.AppointmentID != nil {
		id := *s.AppointmentID
		c.AppointmentID = &id
	}
	if s.Data.AppointmentAt != nil {
		at := *s.Data.AppointmentAt
		c.Data.AppointmentAt = &at
	}
	if s.Data.Services != nil {
		c.Data.Services = append([]SelectedService(nil), s.Data.Services...)
	}
	if s.Data.StaffOptions != nil {
		c.Data.StaffOptions = append([]uint(nil), s.Data.StaffOptions...)
	}
	if s.Data.ServiceOptions != nil {
		c.Data.ServiceOptions = append([]uint(nil), s.Data.ServiceOptions...)
	}
	return &c
}
