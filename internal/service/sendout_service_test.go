package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hostedid/sendout/internal/browser"
	"github.com/hostedid/sendout/internal/browser/browsertest"
	"github.com/hostedid/sendout/internal/config"
	"github.com/hostedid/sendout/internal/logger"
	"github.com/hostedid/sendout/internal/model"
	"github.com/hostedid/sendout/internal/protonmail"
)

// Proton Mail selectors the scenarios below script against
const (
	submitSelector     = "[type='submit']"
	newMessageSelector = ".button.button-large.button-solid-norm"
	toFieldSelector    = "[placeholder='Email address']"
	sendSelector       = "[data-testid='composer:send-button']"
)

const inboxURL = "https://mail.proton.me/u/0/inbox"

func testConfig() *config.Config {
	return &config.Config{
		Webmail: config.WebmailConfig{
			LoginURL: "https://account.proton.me/login",
			InboxURL: inboxURL,
		},
		Timing: config.TimingConfig{LoginPollAttempts: 15},
		Redis: config.RedisConfig{
			LockTTL:         time.Minute,
			DeliveryChannel: "sendout:deliveries",
		},
	}
}

func validRequest() model.SendoutRequest {
	return model.SendoutRequest{
		Username:   "a",
		Password:   "b",
		Subject:    "s",
		Message:    "m",
		Recipients: []string{"x@y.com", "p@q.com"},
	}
}

type fixture struct {
	page        *browsertest.Page
	launcher    *browsertest.Launcher
	history     *fakeHistory
	coordinator *fakeCoordinator
	svc         *SendoutService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testConfig()

	mailbox, err := protonmail.NewClient(cfg, logger.Nop())
	require.NoError(t, err)

	page := browsertest.NewPage().OnClick(submitSelector, inboxURL)
	f := &fixture{
		page:        page,
		launcher:    browsertest.NewLauncher(page),
		history:     &fakeHistory{},
		coordinator: newFakeCoordinator(),
	}
	f.svc = NewSendoutService(f.launcher, mailbox, f.history, f.coordinator, cfg, logger.Nop())
	return f
}

func TestRunRejectsIncompleteRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(r *model.SendoutRequest)
	}{
		{"no username", func(r *model.SendoutRequest) { r.Username = "" }},
		{"no password", func(r *model.SendoutRequest) { r.Password = "" }},
		{"no subject", func(r *model.SendoutRequest) { r.Subject = "" }},
		{"no message", func(r *model.SendoutRequest) { r.Message = "" }},
		{"no recipients", func(r *model.SendoutRequest) { r.Recipients = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			req := validRequest()
			tt.mutate(&req)

			log, err := f.svc.Run(context.Background(), req)
			require.ErrorIs(t, err, model.ErrMissingSendoutData)
			require.Nil(t, log)

			require.Zero(t, f.launcher.Launches())
			require.Empty(t, f.page.Calls())
			require.Zero(t, f.coordinator.acquires)
			require.Empty(t, f.history.created)
		})
	}
}

func TestRunDeliversToEveryRecipientInOrder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	log, err := f.svc.Run(context.Background(), validRequest())
	require.NoError(t, err)

	require.Len(t, log, 2)
	require.Equal(t, "x@y.com", log[0].Address)
	require.Equal(t, "p@q.com", log[1].Address)
	for _, rec := range log {
		require.Equal(t, model.StatusOK, rec.Status)
		require.NotNil(t, rec.SentAt)
	}

	require.Equal(t, []string{"x@y.com", "p@q.com"}, f.page.Typed(toFieldSelector))
	require.Equal(t, 1, f.launcher.Launches())
	require.Equal(t, 1, f.launcher.Browser.Closes())

	data, err := json.Marshal(model.NewSendoutResult(log, err))
	require.NoError(t, err)
	var payload struct {
		Res []struct {
			Address string `json:"address"`
			Status  string `json:"status"`
			SentAt  *int64 `json:"sent_at"`
		} `json:"res"`
		Error *string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &payload))
	require.Nil(t, payload.Error)
	require.Len(t, payload.Res, 2)
	require.Equal(t, "ok", payload.Res[0].Status)
	require.NotNil(t, payload.Res[0].SentAt)
	require.NotNil(t, payload.Res[1].SentAt)
}

func TestRunAbortsRemainingRecipientsOnFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.page.RemoveAfter(toFieldSelector, 1)

	req := validRequest()
	req.Recipients = []string{"one@y.com", "two@y.com", "three@y.com"}

	log, err := f.svc.Run(context.Background(), req)
	require.ErrorIs(t, err, protonmail.ErrToFieldUnavailable)
	require.Nil(t, log)

	require.Equal(t, 1, f.page.Count("click", sendSelector))
	require.Equal(t, 2, f.page.Count("click", newMessageSelector))
	require.Equal(t, 1, f.launcher.Browser.Closes())

	// The first recipient's record survives in the history store.
	require.Len(t, f.history.deliveries, 1)
	require.Equal(t, "one@y.com", f.history.deliveries[0].Address)
	require.Len(t, f.history.finished, 1)
	require.Equal(t, model.SendoutFailed, f.history.finished[0].State)
	require.Equal(t, protonmail.ErrToFieldUnavailable.Error(), *f.history.finished[0].Error)
}

func TestRunFailsWhenSubmitButtonIsMissing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.page.Remove(submitSelector)

	log, err := f.svc.Run(context.Background(), validRequest())
	require.Error(t, err)
	require.Nil(t, log)

	res := model.NewSendoutResult(log, err)
	require.Nil(t, res.Res)
	require.NotNil(t, res.Error)
	require.Equal(t, "Could not find the authentication credentials submission button.", *res.Error)

	require.Zero(t, f.page.Count("click", newMessageSelector))
	require.Zero(t, f.page.Count("type", toFieldSelector))
	require.Equal(t, 1, f.launcher.Browser.Closes())
}

func TestRunClosesBrowserWhenNoPageOpens(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.launcher.Browser.NewPageErr = errors.New("target crashed")

	_, err := f.svc.Run(context.Background(), validRequest())
	require.Error(t, err)
	require.Equal(t, 1, f.launcher.Browser.Closes())
}

func TestRunLaunchFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.launcher.Err = errors.New("chrome not found")

	_, err := f.svc.Run(context.Background(), validRequest())
	require.ErrorContains(t, err, "chrome not found")
	require.Zero(t, f.launcher.Browser.Closes())
	require.Equal(t, 1, f.coordinator.releases)
}

func TestRunAccountLock(t *testing.T) {
	t.Parallel()

	t.Run("refuses to start while the account is locked", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.coordinator.held = true

		_, err := f.svc.Run(context.Background(), validRequest())
		require.ErrorIs(t, err, ErrSendoutInProgress)
		require.Zero(t, f.launcher.Launches())
		require.Zero(t, f.coordinator.releases)
	})

	t.Run("releases the lock and publishes each delivery", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		_, err := f.svc.Run(context.Background(), validRequest())
		require.NoError(t, err)
		require.Equal(t, 1, f.coordinator.acquires)
		require.Equal(t, 1, f.coordinator.releases)
		require.Equal(t, f.coordinator.lockToken, f.history.created[0].ID)
		require.Len(t, f.coordinator.published, 2)
		require.Equal(t, "sendout:deliveries", f.coordinator.channels[0])
	})

	t.Run("renews the lock before each recipient", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		_, err := f.svc.Run(context.Background(), validRequest())
		require.NoError(t, err)
		require.Equal(t, []time.Duration{time.Minute, time.Minute}, f.coordinator.extends)
	})

	t.Run("a lost lock aborts the remaining recipients", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		// The lock runs out while the first message is being sent.
		f.svc.mailbox = expiringMailbox{Mailbox: f.svc.mailbox, coordinator: f.coordinator}

		records, err := f.svc.Run(context.Background(), validRequest())
		require.ErrorIs(t, err, ErrLockLost)
		require.Nil(t, records)
		require.Equal(t, 1, f.page.Count("click", sendSelector))
		require.Len(t, f.coordinator.extends, 2)
		require.Equal(t, 1, f.launcher.Browser.Closes())
		require.Len(t, f.history.finished, 1)
		require.Equal(t, model.SendoutFailed, f.history.finished[0].State)
	})

	t.Run("extend errors do not fail the sendout", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.coordinator.extendErr = errors.New("redis down")

		records, err := f.svc.Run(context.Background(), validRequest())
		require.NoError(t, err)
		require.Len(t, records, 2)
	})

	t.Run("lock errors fail the sendout before launch", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.coordinator.acquireErr = errors.New("redis down")

		_, err := f.svc.Run(context.Background(), validRequest())
		require.ErrorContains(t, err, "redis down")
		require.Zero(t, f.launcher.Launches())
	})
}

func TestRunWithoutOptionalStores(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	mailbox, err := protonmail.NewClient(cfg, logger.Nop())
	require.NoError(t, err)

	page := browsertest.NewPage().OnClick(submitSelector, inboxURL)
	launcher := browsertest.NewLauncher(page)
	svc := NewSendoutService(launcher, mailbox, nil, nil, cfg, logger.Nop())

	log, err := svc.Run(context.Background(), validRequest())
	require.NoError(t, err)
	require.Len(t, log, 2)
	require.Equal(t, 1, launcher.Browser.Closes())
}

func TestRunStoreErrorsDoNotFailTheSendout(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.history.err = errors.New("db down")
	f.coordinator.publishErr = errors.New("redis down")

	log, err := f.svc.Run(context.Background(), validRequest())
	require.NoError(t, err)
	require.Len(t, log, 2)
}

type fakeHistory struct {
	mu         sync.Mutex
	err        error
	created    []model.Sendout
	deliveries []model.DeliveryRecord
	finished   []model.Sendout
}

func (h *fakeHistory) Create(ctx context.Context, s *model.Sendout) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.created = append(h.created, *s)
	return h.err
}

func (h *fakeHistory) AddDelivery(ctx context.Context, sendoutID string, position int, rec model.DeliveryRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deliveries = append(h.deliveries, rec)
	return h.err
}

func (h *fakeHistory) Finish(ctx context.Context, s *model.Sendout) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.finished = append(h.finished, *s)
	return h.err
}

// expiringMailbox expires the account lock after every send
type expiringMailbox struct {
	Mailbox
	coordinator *fakeCoordinator
}

func (m expiringMailbox) Send(ctx context.Context, page browser.Page, address, subject, message string) (model.DeliveryStatus, error) {
	status, err := m.Mailbox.Send(ctx, page, address, subject, message)
	m.coordinator.expire()
	return status, err
}

type fakeCoordinator struct {
	mu         sync.Mutex
	held       bool
	acquireErr error
	extendErr  error
	publishErr error
	lockToken  string
	acquires   int
	extends    []time.Duration
	releases   int
	channels   []string
	published  []interface{}
}

func newFakeCoordinator() *fakeCoordinator {
	return &fakeCoordinator{}
}

func (c *fakeCoordinator) AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acquires++
	if c.acquireErr != nil {
		return false, c.acquireErr
	}
	if c.held {
		return false, nil
	}
	c.held = true
	c.lockToken = token
	return true, nil
}

func (c *fakeCoordinator) ExtendLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.extends = append(c.extends, ttl)
	if c.extendErr != nil {
		return false, c.extendErr
	}
	return c.held && token == c.lockToken, nil
}

// expire drops the lock as if its TTL had run out
func (c *fakeCoordinator) expire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.held = false
}

func (c *fakeCoordinator) ReleaseLock(ctx context.Context, key, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releases++
	if token == c.lockToken {
		c.held = false
	}
	return nil
}

func (c *fakeCoordinator) PublishJSON(ctx context.Context, channel string, v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels = append(c.channels, channel)
	c.published = append(c.published, v)
	return c.publishErr
}
