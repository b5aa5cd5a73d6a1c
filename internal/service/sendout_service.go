package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hostedid/sendout/internal/auth"
	"github.com/hostedid/sendout/internal/browser"
	"github.com/hostedid/sendout/internal/config"
	"github.com/hostedid/sendout/internal/logger"
	"github.com/hostedid/sendout/internal/model"
)

// Sendout service errors
var (
	ErrSendoutInProgress = errors.New("Another sendout is already running for this account.")
	ErrLockLost          = errors.New("The account lock expired before the sendout finished.")
)

const lockKeyPrefix = "sendout:lock:"

// Mailbox signs in to a webmail account and sends messages from it
type Mailbox interface {
	LogIn(ctx context.Context, b browser.Browser, username, password string) (browser.Page, error)
	Send(ctx context.Context, page browser.Page, address, subject, message string) (model.DeliveryStatus, error)
}

// HistoryStore persists sendouts and their delivery records
type HistoryStore interface {
	Create(ctx context.Context, s *model.Sendout) error
	AddDelivery(ctx context.Context, sendoutID string, position int, rec model.DeliveryRecord) error
	Finish(ctx context.Context, s *model.Sendout) error
}

// Coordinator holds per-account locks and publishes delivery events
type Coordinator interface {
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ExtendLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
	PublishJSON(ctx context.Context, channel string, v interface{}) error
}

// SendoutService runs sendouts: one login, then one message per recipient
type SendoutService struct {
	launcher    browser.Launcher
	mailbox     Mailbox
	history     HistoryStore
	coordinator Coordinator
	cfg         *config.Config
	log         *logger.Logger
	now         func() time.Time
}

// NewSendoutService creates a new SendoutService.
// history and coordinator are optional and may be nil.
func NewSendoutService(
	launcher browser.Launcher,
	mailbox Mailbox,
	history HistoryStore,
	coordinator Coordinator,
	cfg *config.Config,
	log *logger.Logger,
) *SendoutService {
	return &SendoutService{
		launcher:    launcher,
		mailbox:     mailbox,
		history:     history,
		coordinator: coordinator,
		cfg:         cfg,
		log:         log.WithComponent("sendout_service"),
		now:         time.Now,
	}
}

// Run validates req, sends the message to every recipient in order and
// returns one delivery record per recipient.
//
// The first failing step aborts the remaining recipients and only the
// error is returned. Records produced before the failure are still logged,
// stored and published as they happen.
func (s *SendoutService) Run(ctx context.Context, req model.SendoutRequest) ([]model.DeliveryRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	account := auth.AccountFingerprint(req.Username)
	run := &model.Sendout{
		ID:                 uuid.NewString(),
		AccountFingerprint: account,
		Subject:            req.Subject,
		RecipientCount:     len(req.Recipients),
		State:              model.SendoutRunning,
		StartedAt:          s.now(),
	}
	log := s.log.WithSendoutID(run.ID).WithAccount(account)

	var lockKey string
	if s.coordinator != nil {
		lockKey = lockKeyPrefix + account
		ok, err := s.coordinator.AcquireLock(ctx, lockKey, run.ID, s.cfg.Redis.LockTTL)
		if err != nil {
			return nil, err
		}
		if !ok {
			log.Warn().Msg("sendout already running for account")
			return nil, ErrSendoutInProgress
		}
		defer func() {
			if err := s.coordinator.ReleaseLock(context.WithoutCancel(ctx), lockKey, run.ID); err != nil {
				log.Warn().Err(err).Msg("failed to release account lock")
			}
		}()
	}

	log.Info().Int("recipients", run.RecipientCount).Msg("sendout started")
	if s.history != nil {
		if err := s.history.Create(ctx, run); err != nil {
			log.Warn().Err(err).Msg("failed to store sendout")
		}
	}

	records, err := s.deliver(ctx, log, run.ID, lockKey, req)
	s.finish(ctx, log, run, err)
	if err != nil {
		log.Error().Err(err).Int("delivered", len(records)).Msg("sendout failed")
		return nil, err
	}

	log.Info().Int("delivered", len(records)).Msg("sendout completed")
	return records, nil
}

// deliver owns the browser for the whole sendout and closes it exactly once.
// lockKey is empty when no account lock is held.
func (s *SendoutService) deliver(ctx context.Context, log *logger.Logger, sendoutID, lockKey string, req model.SendoutRequest) ([]model.DeliveryRecord, error) {
	b, err := s.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close browser")
		}
	}()

	page, err := s.mailbox.LogIn(ctx, b, req.Username, req.Password)
	if err != nil {
		return nil, err
	}

	records := make([]model.DeliveryRecord, 0, len(req.Recipients))
	for i, address := range req.Recipients {
		if err := s.extendLock(ctx, log, lockKey, sendoutID); err != nil {
			return records, err
		}

		status, err := s.mailbox.Send(ctx, page, address, req.Subject, req.Message)
		if err != nil {
			return records, err
		}

		rec := model.NewDeliveryRecord(address, status, s.now())
		records = append(records, rec)
		s.recordDelivery(ctx, log, sendoutID, i, rec)
	}

	// Let the last send leave the outbox before the browser goes away.
	if err := sleep(ctx, s.cfg.Timing.GracePeriod); err != nil {
		return records, err
	}
	return records, nil
}

// extendLock renews the account lock before each recipient. A lock taken
// over by another sendout aborts this one; Redis errors only get logged.
func (s *SendoutService) extendLock(ctx context.Context, log *logger.Logger, key, token string) error {
	if key == "" {
		return nil
	}
	held, err := s.coordinator.ExtendLock(ctx, key, token, s.cfg.Redis.LockTTL)
	if err != nil {
		log.Warn().Err(err).Msg("failed to extend account lock")
		return nil
	}
	if !held {
		log.Error().Msg("account lock lost")
		return ErrLockLost
	}
	return nil
}

func (s *SendoutService) recordDelivery(ctx context.Context, log *logger.Logger, sendoutID string, position int, rec model.DeliveryRecord) {
	log.Delivery(position, rec)

	if s.history != nil {
		if err := s.history.AddDelivery(ctx, sendoutID, position, rec); err != nil {
			log.Warn().Err(err).Int("position", position).Msg("failed to store delivery")
		}
	}

	if s.coordinator != nil {
		event := model.StoredDelivery{SendoutID: sendoutID, Position: position, Record: rec}
		if err := s.coordinator.PublishJSON(ctx, s.cfg.Redis.DeliveryChannel, event); err != nil {
			log.Warn().Err(err).Int("position", position).Msg("failed to publish delivery")
		}
	}
}

func (s *SendoutService) finish(ctx context.Context, log *logger.Logger, run *model.Sendout, runErr error) {
	finishedAt := s.now()
	run.FinishedAt = &finishedAt
	run.State = model.SendoutCompleted
	if runErr != nil {
		msg := runErr.Error()
		run.State = model.SendoutFailed
		run.Error = &msg
	}

	if s.history == nil {
		return
	}
	if err := s.history.Finish(context.WithoutCancel(ctx), run); err != nil {
		log.Warn().Err(err).Msg("failed to finish sendout")
	}
}

// sleep waits d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
