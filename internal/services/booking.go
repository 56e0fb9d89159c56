package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Ananth-NQI/salonbook-backend/internal/models"
	"github.com/Ananth-NQI/salonbook-backend/internal/storage"
)

// commitBooking creates the appointment, its service lines and the final
// session state in one transaction.
func (c *ConversationService) commitBooking(ctx context.Context, t *turn) (turnResult, error) {
	s := t.session
	data := s.Data
	if s.CustomerID == nil || data.StaffID == 0 || data.AppointmentAt == nil || len(data.Services) == 0 {
		return c.failBooking(ctx, t, &PersistenceError{Op: "validate booking", Err: ErrIncompleteBooking})
	}

	before := s.Clone()
	var appointment *models.Appointment
	err := c.store.WithTx(ctx, func(tx storage.Store) error {
		appointment = &models.Appointment{
			CustomerID:      *s.CustomerID,
			StaffID:         data.StaffID,
			AppointmentDate: *data.AppointmentAt,
			Status:          models.AppointmentStatusScheduled,
			Notes:           data.Notes,
		}
		if err := tx.CreateAppointment(ctx, appointment); err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		for _, selected := range data.Services {
			if _, err := tx.GetService(ctx, selected.ID); err != nil {
				return fmt.Errorf("service %d: %w", selected.ID, err)
			}
			line := &models.AppointmentServiceLine{
				AppointmentID: appointment.ID,
				ServiceID:     selected.ID,
				Price:         selected.Price,
			}
			if err := tx.CreateAppointmentServiceLine(ctx, line); err != nil {
				return fmt.Errorf("create service line: %w", err)
			}
		}

		id := appointment.ID
		s.AppointmentID = &id
		if err := advance(s, models.StepCompleted); err != nil {
			return err
		}
		s.Active = false
		return tx.SaveSession(ctx, s)
	})
	if err != nil {
		*s = *before
		if errors.Is(err, storage.ErrVersionConflict) {
			return turnResult{}, err
		}
		return c.failBooking(ctx, t, &PersistenceError{Op: "commit booking", Err: err})
	}

	t.log.Info("appointment booked",
		zap.Uint("appointment_id", appointment.ID),
		zap.Uint("customer_id", appointment.CustomerID),
		zap.Time("appointment_date", appointment.AppointmentDate),
		zap.Float64("total", data.TotalPrice))
	return turnResult{Reply: confirmationText(appointment.ID, s.Data), Persisted: true}, nil
}

// failBooking closes the session after a failed commit. The cause is only
// logged.
func (c *ConversationService) failBooking(ctx context.Context, t *turn, perr *PersistenceError) (turnResult, error) {
	t.log.Error("booking failed", zap.Error(perr))
	closeSession(t.session)
	if err := c.store.SaveSession(ctx, t.session); err != nil {
		return turnResult{}, fmt.Errorf("close session after failed booking: %w", err)
	}
	return turnResult{Reply: BookingFailedText, Persisted: true}, nil
}
