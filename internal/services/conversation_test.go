package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Ananth-NQI/salonbook-backend/internal/models"
	"github.com/Ananth-NQI/salonbook-backend/internal/storage"
	"github.com/Ananth-NQI/salonbook-backend/internal/utils"
)

const (
	testSender   = "9876543210"
	testIdentity = "919876543210"
)

var testNow = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

type sentMessage struct {
	To   string
	Text string
}

type recordingMessenger struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (r *recordingMessenger) Send(_ context.Context, identity, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentMessage{To: identity, Text: text})
	return nil
}

func (r *recordingMessenger) messages() []sentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentMessage(nil), r.sent...)
}

type mockMessenger struct {
	mock.Mock
}

func (m *mockMessenger) Send(ctx context.Context, identity, text string) error {
	return m.Called(ctx, identity, text).Error(0)
}

// failingLineStore fails every service line written inside a transaction.
type failingLineStore struct {
	storage.Store
}

func (f *failingLineStore) WithTx(ctx context.Context, fn func(tx storage.Store) error) error {
	return f.Store.WithTx(ctx, func(tx storage.Store) error {
		return fn(&failingLineStore{Store: tx})
	})
}

func (f *failingLineStore) CreateAppointmentServiceLine(context.Context, *models.AppointmentServiceLine) error {
	return errors.New("pq: disk full")
}

// txSessionFailStore fails session saves made inside a transaction.
type txSessionFailStore struct {
	storage.Store
	inTx bool
}

func (f *txSessionFailStore) WithTx(ctx context.Context, fn func(tx storage.Store) error) error {
	return f.Store.WithTx(ctx, func(tx storage.Store) error {
		return fn(&txSessionFailStore{Store: tx, inTx: true})
	})
}

func (f *txSessionFailStore) SaveSession(ctx context.Context, s *models.ConversationSession) error {
	if f.inTx {
		return errors.New("pq: connection reset by peer")
	}
	return f.Store.SaveSession(ctx, s)
}

// racingStore simulates another writer that processed the same message
// first: once armed, the next SaveSession lets a copy of the session win.
type racingStore struct {
	storage.Store
	mu    sync.Mutex
	armed bool
}

func (r *racingStore) arm() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.armed = true
}

func (r *racingStore) SaveSession(ctx context.Context, s *models.ConversationSession) error {
	r.mu.Lock()
	fire := r.armed
	r.armed = false
	r.mu.Unlock()

	if fire {
		if err := r.Store.SaveSession(ctx, s.Clone()); err != nil {
			return err
		}
	}
	return r.Store.SaveSession(ctx, s)
}

// passLocker does not lock at all.
type passLocker struct{}

func (passLocker) Lock(context.Context, string) (func(), error) { return func() {}, nil }

type fixture struct {
	store     *storage.MemoryStore
	clock     *utils.FakeClock
	messenger *recordingMessenger
	svc       *ConversationService
	haircut   *models.Service
	facial    *models.Service
	asha      *models.Staff
}

type fixtureOption func(*fixtureDeps)

type fixtureDeps struct {
	store     storage.Store
	messenger Messenger
	locker    Locker
	settings  Settings
}

func withStore(wrap func(storage.Store) storage.Store) fixtureOption {
	return func(d *fixtureDeps) { d.store = wrap(d.store) }
}

func withMessenger(m Messenger) fixtureOption {
	return func(d *fixtureDeps) { d.messenger = m }
}

func withLocker(l Locker) fixtureOption {
	return func(d *fixtureDeps) { d.locker = l }
}

func withRetries(n int) fixtureOption {
	return func(d *fixtureDeps) { d.settings.MaxConflictRetries = n }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		store:     storage.NewMemoryStore(),
		clock:     utils.NewFakeClock(testNow),
		messenger: &recordingMessenger{},
		haircut:   &models.Service{Name: "Haircut", Price: 250, Duration: 30, IsActive: true},
		facial:    &models.Service{Name: "Facial", Price: 800, Duration: 60, IsActive: true},
		asha:      &models.Staff{Name: "Asha", Mobile: "9000000001", IsActive: true},
	}
	f.store.SetNow(f.clock.Now)

	require.NoError(t, f.store.CreateStaff(ctx, f.asha))
	require.NoError(t, f.store.CreateStaff(ctx, &models.Staff{Name: "Ravi", Mobile: "9000000002", IsActive: true}))
	require.NoError(t, f.store.CreateService(ctx, f.haircut))
	require.NoError(t, f.store.CreateService(ctx, f.facial))

	deps := &fixtureDeps{
		store:     f.store,
		messenger: f.messenger,
		locker:    NewLocalLocker(),
		settings: Settings{
			BusinessName:       "Pretty Saloon",
			CountryPrefix:      "91",
			Location:           time.UTC,
			SessionTTL:         24 * time.Hour,
			LockTimeout:        time.Second,
			MaxConflictRetries: 3,
		},
	}
	for _, opt := range opts {
		opt(deps)
	}

	f.svc = NewConversationService(deps.store, deps.messenger, deps.locker, f.clock, zaptest.NewLogger(t), deps.settings)
	return f
}

func (f *fixture) send(t *testing.T, text string) string {
	t.Helper()
	reply, err := f.svc.ReceiveMessage(context.Background(), testSender, text)
	require.NoError(t, err, "message %q", text)
	return reply
}

func (f *fixture) sendAll(t *testing.T, texts ...string) []string {
	t.Helper()
	replies := make([]string, 0, len(texts))
	for _, text := range texts {
		replies = append(replies, f.send(t, text))
	}
	return replies
}

func (f *fixture) active(t *testing.T) *models.ConversationSession {
	t.Helper()
	s, err := f.store.GetActiveSession(context.Background(), testIdentity)
	require.NoError(t, err)
	return s
}

func (f *fixture) history(t *testing.T) []*models.ConversationSession {
	t.Helper()
	sessions, err := f.store.ListSessionsByIdentity(context.Background(), testIdentity)
	require.NoError(t, err)
	return sessions
}

func (f *fixture) customer(t *testing.T) *models.Customer {
	t.Helper()
	c, err := f.store.FindCustomerByMobile(context.Background(), testSender)
	require.NoError(t, err)
	return c
}

func (f *fixture) appointments(t *testing.T) []models.Appointment {
	t.Helper()
	appts, err := f.store.ListAppointmentsByCustomer(context.Background(), f.customer(t).ID)
	require.NoError(t, err)
	return appts
}

// toServices drives a new customer to the SERVICES step.
func (f *fixture) toServices(t *testing.T) {
	t.Helper()
	f.sendAll(t, "Hi", "John Doe", testSender, "skip", "1", "20-12-2099", "10:00")
	require.Equal(t, models.StepServices, f.active(t).Step)
}

func TestHappyPathBooksOneAppointment(t *testing.T) {
	f := newFixture(t)

	replies := f.sendAll(t, "Hi", "John Doe", "9876543210", "skip", "1", "20-12-2099", "10:00", "1", "no", "yes")

	assert.Equal(t, WelcomeText("Pretty Saloon"), replies[0])
	assert.Contains(t, replies[8], "*Appointment Summary:*")
	assert.Contains(t, replies[8], "20-12-2099")
	assert.Contains(t, replies[9], "Appointment Confirmed")
	assert.Contains(t, replies[9], "Appointment ID: #1")
	assert.Contains(t, replies[9], "Haircut")
	assert.Contains(t, replies[9], "₹250.00")

	customer := f.customer(t)
	assert.Equal(t, "John Doe", customer.Name)
	assert.Empty(t, customer.Email)

	appts := f.appointments(t)
	require.Len(t, appts, 1)
	appt := appts[0]
	assert.True(t, time.Date(2099, 12, 20, 10, 0, 0, 0, time.UTC).Equal(appt.AppointmentDate))
	assert.Equal(t, f.asha.ID, appt.StaffID)
	assert.Equal(t, models.AppointmentStatusScheduled, appt.Status)
	assert.Empty(t, appt.Notes)
	require.Len(t, appt.Services, 1)
	assert.Equal(t, f.haircut.ID, appt.Services[0].ServiceID)
	assert.Equal(t, 250.0, appt.Services[0].Price)

	history := f.history(t)
	require.Len(t, history, 1)
	session := history[0]
	assert.False(t, session.Active)
	assert.Equal(t, models.StepCompleted, session.Step)
	require.NotNil(t, session.AppointmentID)
	assert.Equal(t, appt.ID, *session.AppointmentID)
	assert.Equal(t, customer.ID, *session.CustomerID)

	sent := f.messenger.messages()
	require.Len(t, sent, len(replies))
	for i, m := range sent {
		assert.Equal(t, testIdentity, m.To)
		assert.Equal(t, replies[i], m.Text)
	}
}

func TestFirstMessageAlwaysWelcomes(t *testing.T) {
	for _, first := range []string{"Hi", "book", "yes", "12:00", ""} {
		f := newFixture(t)
		assert.Equal(t, WelcomeText("Pretty Saloon"), f.send(t, first), "first message %q", first)
		assert.Equal(t, models.StepName, f.active(t).Step)
	}

	// Cancel is honoured before anything else, even on a first message.
	f := newFixture(t)
	assert.Equal(t, CancelledText, f.send(t, "cancel"))
	history := f.history(t)
	require.Len(t, history, 1)
	assert.False(t, history[0].Active)
	assert.Equal(t, WelcomeText("Pretty Saloon"), f.send(t, "Hi"))
}

func TestSenderFormatsShareOneConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ReceiveMessage(ctx, "whatsapp:+919876543210", "Hi")
	require.NoError(t, err)
	_, err = f.svc.ReceiveMessage(ctx, "+91 98765 43210", "John Doe")
	require.NoError(t, err)

	assert.Equal(t, models.StepMobile, f.active(t).Step)
	assert.Len(t, f.history(t), 1)

	_, err = f.svc.ReceiveMessage(ctx, "whatsapp:+", "Hi")
	assert.ErrorIs(t, err, ErrInvalidIdentity)
}

func TestExistingCustomerSkipsToStaff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	existing, err := f.store.CreateCustomer(ctx, "Old Name", testSender)
	require.NoError(t, err)
	require.NoError(t, f.store.UpdateCustomerEmail(ctx, existing.ID, "jane@example.com"))

	replies := f.sendAll(t, "Hi", "Jane")

	assert.Contains(t, replies[1], "Hello Jane!")
	assert.Contains(t, replies[1], "1. Asha\n2. Ravi")

	s := f.active(t)
	assert.Equal(t, models.StepStaff, s.Step)
	assert.Equal(t, "Jane", s.Data.Name)
	assert.Equal(t, testSender, s.Data.Mobile)
	assert.Equal(t, "jane@example.com", s.Data.Email)
	require.NotNil(t, s.CustomerID)
	assert.Equal(t, existing.ID, *s.CustomerID)
}

func TestMobileStepCreatesCustomerAndEmailUpdatesIt(t *testing.T) {
	f := newFixture(t)

	f.sendAll(t, "Hi", "John Doe", "98765-43210")
	s := f.active(t)
	assert.Equal(t, models.StepEmail, s.Step)
	require.NotNil(t, s.CustomerID)

	f.send(t, "John@Example.com")
	assert.Equal(t, "John@Example.com", f.customer(t).Email)
	assert.Equal(t, models.StepStaff, f.active(t).Step)
}

func TestMobileStepFailureLeavesNoCustomer(t *testing.T) {
	f := newFixture(t, withStore(func(s storage.Store) storage.Store {
		return &txSessionFailStore{Store: s}
	}))
	ctx := context.Background()
	f.sendAll(t, "Hi", "John Doe")

	_, err := f.svc.ReceiveMessage(ctx, testSender, testSender)
	require.Error(t, err)

	_, err = f.store.FindCustomerByMobile(ctx, testSender)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	s := f.active(t)
	assert.Equal(t, models.StepMobile, s.Step)
	assert.Nil(t, s.CustomerID)
	assert.Empty(t, s.Data.Mobile)
}

func TestCancelAtServicesCreatesNothing(t *testing.T) {
	f := newFixture(t)
	f.toServices(t)

	assert.Equal(t, CancelledText, f.send(t, "CANCEL"))

	assert.Empty(t, f.appointments(t))
	history := f.history(t)
	require.Len(t, history, 1)
	assert.False(t, history[0].Active)
	assert.Equal(t, models.StepCompleted, history[0].Step)

	// The next message starts a fresh conversation.
	assert.Equal(t, WelcomeText("Pretty Saloon"), f.send(t, "Hi"))
	assert.Len(t, f.history(t), 2)
}

func TestDecliningConfirmationCancels(t *testing.T) {
	f := newFixture(t)
	f.toServices(t)

	replies := f.sendAll(t, "1", "none", "nope")

	assert.Equal(t, CancelledText, replies[2])
	assert.Empty(t, f.appointments(t))
	assert.False(t, f.history(t)[0].Active)
}

func TestInvalidInputStaysOnStep(t *testing.T) {
	f := newFixture(t)
	f.send(t, "Hi")

	assert.Equal(t, nameRetryText, f.send(t, "J"))
	assert.Equal(t, models.StepName, f.active(t).Step)

	f.send(t, "John Doe")
	assert.Equal(t, mobileRetryText, f.send(t, "12345"))
	assert.Equal(t, models.StepMobile, f.active(t).Step)

	f.send(t, testSender)
	assert.Equal(t, emailRetryText, f.send(t, "john@"))
	assert.Equal(t, models.StepEmail, f.active(t).Step)

	f.send(t, "skip")
	reply := f.send(t, "3")
	assert.Contains(t, reply, "between 1 and 2")
	assert.Contains(t, reply, "1. Asha")
	assert.Equal(t, models.StepStaff, f.active(t).Step)

	f.send(t, "2")
	assert.Equal(t, "Ravi", f.active(t).Data.StaffName)

	reply = f.send(t, "2025-13-40")
	assert.Contains(t, reply, "correct format")
	assert.Contains(t, reply, "Example: 15-01-2025")
	reply = f.send(t, "14-10-2026")
	assert.Contains(t, reply, "today's date or a future date")
	assert.Equal(t, models.StepDate, f.active(t).Step)

	// Today is allowed, but not a time that already passed.
	f.send(t, "15-10-2026")
	assert.Contains(t, f.send(t, "08:00"), "future time")
	assert.Equal(t, models.StepTime, f.active(t).Step)
	assert.Contains(t, f.send(t, "25:00"), "valid time")
	assert.Contains(t, f.send(t, "ten"), "correct format")
	assert.Equal(t, models.StepTime, f.active(t).Step)

	f.send(t, "02:30 pm")
	s := f.active(t)
	require.NotNil(t, s.Data.AppointmentAt)
	assert.True(t, time.Date(2026, 10, 15, 14, 30, 0, 0, time.UTC).Equal(*s.Data.AppointmentAt))

	reply = f.send(t, "1,x")
	assert.Contains(t, reply, "between 1 and 2")
	assert.Contains(t, reply, "2. Facial")
	assert.Contains(t, f.send(t, "3"), "between 1 and 2")
	assert.Equal(t, models.StepServices, f.active(t).Step)

	reply = f.send(t, "2,1,2")
	assert.Contains(t, reply, "Total amount: ₹1050.00")
	assert.Equal(t, []string{"Facial", "Haircut"}, f.active(t).Data.ServiceNames())
}

func TestCommitFailureRollsBackAndClosesSession(t *testing.T) {
	f := newFixture(t, withStore(func(s storage.Store) storage.Store {
		return &failingLineStore{Store: s}
	}))
	f.toServices(t)

	replies := f.sendAll(t, "1", "no", "yes")

	assert.Equal(t, BookingFailedText, replies[2])
	assert.NotContains(t, replies[2], "disk full")
	assert.Empty(t, f.appointments(t))

	history := f.history(t)
	require.Len(t, history, 1)
	assert.False(t, history[0].Active)
	assert.Equal(t, models.StepCompleted, history[0].Step)
	assert.Nil(t, history[0].AppointmentID)
}

func TestMessengerFailureDoesNotBlockConversation(t *testing.T) {
	m := &mockMessenger{}
	m.On("Send", mock.Anything, testIdentity, mock.Anything).
		Return(&TransportError{To: testIdentity, Err: errors.New("twilio unavailable")})
	f := newFixture(t, withMessenger(m))

	assert.Equal(t, WelcomeText("Pretty Saloon"), f.send(t, "Hi"))
	assert.Equal(t, mobilePrompt("John Doe"), f.send(t, "John Doe"))

	assert.Equal(t, models.StepMobile, f.active(t).Step)
	m.AssertNumberOfCalls(t, "Send", 2)
}

func TestIdleSessionExpiresOnNextMessage(t *testing.T) {
	f := newFixture(t)
	f.sendAll(t, "Hi", "John Doe")

	f.clock.Advance(25 * time.Hour)
	reply := f.send(t, testSender)

	assert.True(t, strings.HasPrefix(reply, SessionExpiredText))
	assert.Contains(t, reply, WelcomeText("Pretty Saloon"))

	history := f.history(t)
	require.Len(t, history, 2)
	assert.False(t, history[0].Active)
	assert.Equal(t, models.StepCompleted, history[0].Step)
	assert.True(t, history[1].Active)
	assert.Equal(t, models.StepName, history[1].Step)
}

func TestExpireStaleClosesOnlyIdleSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.send(t, "Hi")
	f.clock.Advance(23 * time.Hour)
	_, err := f.svc.ReceiveMessage(ctx, "9123456789", "Hi")
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)

	expired, err := f.svc.Sessions().ExpireStale(ctx)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, testIdentity, expired[0].Identity)

	count, err := f.svc.Sessions().ActiveCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestDeactivatedServiceIsRejectedAtSelection(t *testing.T) {
	f := newFixture(t)
	f.toServices(t)

	f.haircut.IsActive = false
	require.NoError(t, f.store.UpdateService(context.Background(), f.haircut))

	// Option 1 was Haircut when the list was shown.
	reply := f.send(t, "1")
	assert.Contains(t, reply, "1. Facial")
	assert.NotContains(t, reply, "Haircut")
	assert.Equal(t, models.StepServices, f.active(t).Step)

	f.send(t, "1")
	s := f.active(t)
	assert.Equal(t, models.StepNotes, s.Step)
	assert.Equal(t, []string{"Facial"}, s.Data.ServiceNames())
}

func TestDeactivatedStaffIsRejectedAtSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sendAll(t, "Hi", "John Doe", testSender, "skip")

	require.NoError(t, f.store.CreateStaff(ctx, &models.Staff{Name: "Meera", IsActive: true}))
	f.asha.IsActive = false
	require.NoError(t, f.store.UpdateStaff(ctx, f.asha))

	// Option 1 was Asha when the list was shown.
	reply := f.send(t, "1")
	assert.Contains(t, reply, "1. Ravi\n2. Meera")
	assert.Equal(t, models.StepStaff, f.active(t).Step)

	f.send(t, "2")
	assert.Equal(t, "Meera", f.active(t).Data.StaffName)
}

func TestPriceIsFrozenAtSelection(t *testing.T) {
	f := newFixture(t)
	f.toServices(t)
	f.sendAll(t, "2", "no")

	f.facial.Price = 999
	require.NoError(t, f.store.UpdateService(context.Background(), f.facial))

	assert.Contains(t, f.send(t, "yes"), "₹800.00")
	appts := f.appointments(t)
	require.Len(t, appts, 1)
	require.Len(t, appts[0].Services, 1)
	assert.Equal(t, 800.0, appts[0].Services[0].Price)
}

func TestSessionInUnknownStepRestarts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.CreateSession(ctx, &models.ConversationSession{
		Identity: testIdentity,
		Step:     models.Step("payment"),
		Active:   true,
		Data:     models.BookingData{Name: "Stale"},
	}))

	assert.Equal(t, WelcomeText("Pretty Saloon"), f.send(t, "hello"))
	s := f.active(t)
	assert.Equal(t, models.StepName, s.Step)
	assert.Empty(t, s.Data.Name)
}

func TestAdvanceRejectsIllegalTransition(t *testing.T) {
	s := &models.ConversationSession{Step: models.StepDate}
	assert.ErrorIs(t, advance(s, models.StepConfirm), ErrIllegalTransition)
	assert.Equal(t, models.StepDate, s.Step)

	require.NoError(t, advance(s, models.StepTime))
	assert.Equal(t, models.StepTime, s.Step)

	done := &models.ConversationSession{Step: models.StepCompleted}
	assert.ErrorIs(t, advance(done, models.StepStart), ErrIllegalTransition)
}

func TestConcurrentMessagesAdvanceOnce(t *testing.T) {
	f := newFixture(t)
	f.send(t, "Hi")

	var wg sync.WaitGroup
	replies := make([]string, 2)
	for i := range replies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reply, err := f.svc.ReceiveMessage(context.Background(), testSender, "John Doe")
			assert.NoError(t, err)
			replies[i] = reply
		}(i)
	}
	wg.Wait()

	won := 0
	for _, r := range replies {
		if r == mobilePrompt("John Doe") {
			won++
		}
	}
	assert.Equal(t, 1, won, "replies: %q", replies)
	assert.Contains(t, replies, mobileRetryText)

	s := f.active(t)
	assert.Equal(t, models.StepMobile, s.Step)
	assert.Len(t, f.history(t), 1)
}

func TestVersionConflictReprocessesMessage(t *testing.T) {
	var racer *racingStore
	f := newFixture(t,
		withLocker(passLocker{}),
		withStore(func(s storage.Store) storage.Store {
			racer = &racingStore{Store: s}
			return racer
		}),
	)
	f.send(t, "Hi")

	// The other writer already moved NAME -> MOBILE with the same text, so
	// the retry sees MOBILE and rejects the name as a mobile number.
	racer.arm()
	assert.Equal(t, mobileRetryText, f.send(t, "John Doe"))

	s := f.active(t)
	assert.Equal(t, models.StepMobile, s.Step)
	assert.Equal(t, "John Doe", s.Data.Name)
	assert.Len(t, f.history(t), 1)
}

func TestVersionConflictWithoutRetriesFails(t *testing.T) {
	var racer *racingStore
	f := newFixture(t,
		withLocker(passLocker{}),
		withRetries(0),
		withStore(func(s storage.Store) storage.Store {
			racer = &racingStore{Store: s}
			return racer
		}),
	)

	racer.arm()
	_, err := f.svc.ReceiveMessage(context.Background(), testSender, "Hi")
	assert.ErrorIs(t, err, storage.ErrVersionConflict)
}
