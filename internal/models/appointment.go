package models

import (
	"time"

	"gorm.io/gorm"
)

// Appointment is a booked visit of a customer with a staff member.
type Appointment struct {
	gorm.Model
	CustomerID      uint                     `json:"customer_id" gorm:"not null;index"`
	StaffID         uint                     `json:"staff_id" gorm:"not null;index"`
	AppointmentDate time.Time                `json:"appointment_date" gorm:"not null"`
	Status          string                   `json:"status" gorm:"size:20;default:scheduled"`
	Notes           string                   `json:"notes"`
	Services        []AppointmentServiceLine `json:"services,omitempty" gorm:"foreignKey:AppointmentID"`
}

// AppointmentServiceLine is one service on an appointment, priced at booking time.
type AppointmentServiceLine struct {
	ID            uint    `json:"id" gorm:"primaryKey"`
	AppointmentID uint    `json:"appointment_id" gorm:"not null;index"`
	ServiceID     uint    `json:"service_id" gorm:"not null"`
	Price         float64 `json:"price" gorm:"not null"`
}

// TableName keeps the table name used by the salon admin.
func (AppointmentServiceLine) TableName() string {
	return "appointment_services"
}

// Appointment status constants
const (
	AppointmentStatusScheduled = "scheduled"
	AppointmentStatusCompleted = "completed"
	AppointmentStatusCancelled = "cancelled"
	AppointmentStatusNoShow    = "no-show"
)
