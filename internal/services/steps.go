package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Ananth-NQI/salonbook-backend/internal/models"
	"github.com/Ananth-NQI/salonbook-backend/internal/storage"
)

// transitions lists the steps each step may advance to on valid input.
// Cancellation is handled separately and is allowed from any active step.
var transitions = map[models.Step][]models.Step{
	models.StepStart:    {models.StepName},
	models.StepName:     {models.StepMobile, models.StepStaff},
	models.StepMobile:   {models.StepEmail},
	models.StepEmail:    {models.StepStaff},
	models.StepStaff:    {models.StepDate},
	models.StepDate:     {models.StepTime},
	models.StepTime:     {models.StepServices},
	models.StepServices: {models.StepNotes},
	models.StepNotes:    {models.StepConfirm},
	models.StepConfirm:  {models.StepCompleted},
}

func advance(s *models.ConversationSession, next models.Step) error {
	for _, allowed := range transitions[s.Step] {
		if allowed == next {
			s.Step = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s.Step, next)
}

// turn is one inbound message applied to a loaded session.
type turn struct {
	session *models.ConversationSession
	input   string
	log     *zap.Logger
}

// turnResult is what a step handler produced. Persisted is set when the
// handler already saved the session itself.
type turnResult struct {
	Reply     string
	Persisted bool
}

type stepHandler func(ctx context.Context, t *turn) (turnResult, error)

func (c *ConversationService) stepHandlers() map[models.Step]stepHandler {
	return map[models.Step]stepHandler{
		models.StepStart:    c.handleStart,
		models.StepName:     c.handleName,
		models.StepMobile:   c.handleMobile,
		models.StepEmail:    c.handleEmail,
		models.StepStaff:    c.handleStaff,
		models.StepDate:     c.handleDate,
		models.StepTime:     c.handleTime,
		models.StepServices: c.handleServices,
		models.StepNotes:    c.handleNotes,
		models.StepConfirm:  c.handleConfirm,
	}
}

func reply(text string) (turnResult, error) {
	return turnResult{Reply: text}, nil
}

// reprompt keeps the session on its step.
func (t *turn) reprompt(err error, text string) (turnResult, error) {
	t.log.Debug("input rejected", zap.Error(&ValidationError{Step: t.session.Step, Err: err}))
	return reply(text)
}

// cancel ends the conversation with text as the last reply.
func (t *turn) cancel(text string) (turnResult, error) {
	closeSession(t.session)
	return reply(text)
}

func (c *ConversationService) handleStart(_ context.Context, t *turn) (turnResult, error) {
	if err := advance(t.session, models.StepName); err != nil {
		return turnResult{}, err
	}
	return reply(WelcomeText(c.settings.BusinessName))
}

// restart puts an active session in an unexpected step back at the
// beginning of the conversation.
func (c *ConversationService) restart(ctx context.Context, t *turn) (turnResult, error) {
	t.log.Warn("active session in unexpected step, restarting", zap.String("step", string(t.session.Step)))
	t.session.Step = models.StepStart
	t.session.Data = models.BookingData{}
	t.session.CustomerID = nil
	t.session.AppointmentID = nil
	return c.handleStart(ctx, t)
}

func (c *ConversationService) handleName(ctx context.Context, t *turn) (turnResult, error) {
	name, err := ParseName(t.input)
	if err != nil {
		return t.reprompt(err, nameRetryText)
	}
	s := t.session
	s.Data.Name = name

	local := LocalNumber(s.Identity, c.settings.CountryPrefix)
	customer, err := c.store.FindCustomerByMobile(ctx, local)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if err := advance(s, models.StepMobile); err != nil {
			return turnResult{}, err
		}
		return reply(mobilePrompt(name))
	case err != nil:
		return turnResult{}, fmt.Errorf("find customer: %w", err)
	}

	// Known customer: reuse the stored contact details and skip ahead.
	s.Data.Mobile = customer.Mobile
	s.Data.Email = customer.Email
	s.CustomerID = &customer.ID
	if err := advance(s, models.StepStaff); err != nil {
		return turnResult{}, err
	}
	t.log.Info("existing customer matched", zap.Uint("customer_id", customer.ID))

	return c.offerStaff(ctx, t, fmt.Sprintf("Hello %s! 👋", name))
}

func (c *ConversationService) handleMobile(ctx context.Context, t *turn) (turnResult, error) {
	mobile, err := ParseMobile(t.input)
	if err != nil {
		return t.reprompt(err, mobileRetryText)
	}
	s := t.session

	// The new customer and the session pointing at it are written together.
	before := s.Clone()
	var created bool
	err = c.store.WithTx(ctx, func(tx storage.Store) error {
		customer, err := tx.FindCustomerByMobile(ctx, mobile)
		if errors.Is(err, storage.ErrNotFound) {
			customer, err = tx.CreateCustomer(ctx, s.Data.Name, mobile)
			created = err == nil
		}
		if err != nil {
			return fmt.Errorf("resolve customer: %w", err)
		}

		s.Data.Mobile = mobile
		s.CustomerID = &customer.ID
		if err := advance(s, models.StepEmail); err != nil {
			return err
		}
		return tx.SaveSession(ctx, s)
	})
	if err != nil {
		*s = *before
		return turnResult{}, err
	}
	if created {
		t.log.Info("customer created", zap.Uint("customer_id", *s.CustomerID))
	}
	return turnResult{Reply: emailPrompt(), Persisted: true}, nil
}

func (c *ConversationService) handleEmail(ctx context.Context, t *turn) (turnResult, error) {
	email, err := ParseEmail(t.input)
	if err != nil {
		return t.reprompt(err, emailRetryText)
	}
	s := t.session
	s.Data.Email = email

	if email != "" && s.CustomerID != nil {
		if err := c.store.UpdateCustomerEmail(ctx, *s.CustomerID, email); err != nil {
			t.log.Warn("failed to update customer email", zap.Uint("customer_id", *s.CustomerID), zap.Error(err))
		}
	}
	if err := advance(s, models.StepStaff); err != nil {
		return turnResult{}, err
	}

	header := "Email skipped ✅"
	if email != "" {
		header = "Email saved ✅"
	}
	return c.offerStaff(ctx, t, header)
}

// offerStaff renders the active staff list and remembers which staff
// member each option number stands for.
func (c *ConversationService) offerStaff(ctx context.Context, t *turn, header string) (turnResult, error) {
	staff, err := c.store.ListActiveStaff(ctx)
	if err != nil {
		return turnResult{}, fmt.Errorf("list staff: %w", err)
	}
	if len(staff) == 0 {
		return t.cancel(NoStaffText)
	}
	t.session.Data.StaffOptions = staffIDs(staff)
	return reply(staffPrompt(header, staff))
}

func (c *ConversationService) handleStaff(ctx context.Context, t *turn) (turnResult, error) {
	// The choice is checked against the current list, not the one shown.
	staff, err := c.store.ListActiveStaff(ctx)
	if err != nil {
		return turnResult{}, fmt.Errorf("list staff: %w", err)
	}
	if len(staff) == 0 {
		return t.cancel(NoStaffText)
	}

	s := t.session
	options := s.Data.StaffOptions
	if len(options) == 0 {
		options = staffIDs(staff)
	}
	retry := func(err error) (turnResult, error) {
		s.Data.StaffOptions = staffIDs(staff)
		return t.reprompt(err, staffRetry(staff))
	}

	n, err := ParseSelection(t.input, len(options))
	if err != nil {
		return retry(err)
	}
	selected, ok := findStaff(staff, options[n-1])
	if !ok {
		return retry(storage.ErrNotFound)
	}

	s.Data.StaffID = selected.ID
	s.Data.StaffName = selected.Name
	s.Data.StaffOptions = nil
	if err := advance(s, models.StepDate); err != nil {
		return turnResult{}, err
	}
	return reply(datePrompt(selected.Name))
}

func (c *ConversationService) handleDate(_ context.Context, t *turn) (turnResult, error) {
	date, err := ParseDate(t.input, c.now())
	if err != nil {
		return t.reprompt(err, dateRetry(err))
	}

	s := t.session
	s.Data.Date = date.Format("2006-01-02")
	if err := advance(s, models.StepTime); err != nil {
		return turnResult{}, err
	}
	return reply(timePrompt(date.Format(displayDate)))
}

func (c *ConversationService) handleTime(ctx context.Context, t *turn) (turnResult, error) {
	hour, minute, err := ParseClock(t.input)
	if err != nil {
		return t.reprompt(err, timeRetry(err))
	}

	s := t.session
	at, err := CombineDateTime(s.Data.Date, hour, minute, c.settings.Location)
	if err != nil {
		return turnResult{}, err
	}
	if at.Before(c.now()) {
		return t.reprompt(ErrPastTime, timeRetry(ErrPastTime))
	}

	s.Data.AppointmentAt = &at
	if err := advance(s, models.StepServices); err != nil {
		return turnResult{}, err
	}

	services, err := c.store.ListActiveServices(ctx)
	if err != nil {
		return turnResult{}, fmt.Errorf("list services: %w", err)
	}
	if len(services) == 0 {
		return t.cancel(NoServicesText)
	}
	s.Data.ServiceOptions = serviceIDs(services)
	return reply(servicesPrompt(fmt.Sprintf("Time: %s ✅", at.Format(displayTime)), services))
}

func (c *ConversationService) handleServices(ctx context.Context, t *turn) (turnResult, error) {
	services, err := c.store.ListActiveServices(ctx)
	if err != nil {
		return turnResult{}, fmt.Errorf("list services: %w", err)
	}
	if len(services) == 0 {
		return t.cancel(NoServicesText)
	}

	s := t.session
	options := s.Data.ServiceOptions
	if len(options) == 0 {
		options = serviceIDs(services)
	}
	retry := func(err error) (turnResult, error) {
		s.Data.ServiceOptions = serviceIDs(services)
		return t.reprompt(err, servicesRetry(services))
	}

	picks, err := ParseMultiSelection(t.input, len(options))
	if err != nil {
		return retry(err)
	}
	selected := make([]models.SelectedService, 0, len(picks))
	var total float64
	for _, n := range picks {
		svc, ok := findService(services, options[n-1])
		if !ok {
			return retry(storage.ErrNotFound)
		}
		selected = append(selected, models.SelectedService{
			ID:    svc.ID,
			Name:  svc.Name,
			Price: svc.Price,
		})
		total += svc.Price
	}

	s.Data.Services = selected
	s.Data.TotalPrice = total
	s.Data.ServiceOptions = nil
	if err := advance(s, models.StepNotes); err != nil {
		return turnResult{}, err
	}
	return reply(notesPrompt(s.Data))
}

func (c *ConversationService) handleNotes(_ context.Context, t *turn) (turnResult, error) {
	s := t.session
	s.Data.Notes = ParseNotes(t.input)
	if err := advance(s, models.StepConfirm); err != nil {
		return turnResult{}, err
	}
	return reply(summaryText(s.Data))
}

func (c *ConversationService) handleConfirm(ctx context.Context, t *turn) (turnResult, error) {
	if !IsAffirmative(t.input) {
		t.log.Info("booking declined at confirmation")
		return t.cancel(CancelledText)
	}
	return c.commitBooking(ctx, t)
}

func staffIDs(staff []models.Staff) []uint {
	ids := make([]uint, 0, len(staff))
	for _, st := range staff {
		ids = append(ids, st.ID)
	}
	return ids
}

func serviceIDs(services []models.Service) []uint {
	ids := make([]uint, 0, len(services))
	for _, svc := range services {
		ids = append(ids, svc.ID)
	}
	return ids
}

func findStaff(staff []models.Staff, id uint) (models.Staff, bool) {
	for _, st := range staff {
		if st.ID == id {
			return st, true
		}
	}
	return models.Staff{}, false
}

func findService(services []models.Service, id uint) (models.Service, bool) {
	for _, svc := range services {
		if svc.ID == id {
			return svc, true
		}
	}
	return models.Service{}, false
}
