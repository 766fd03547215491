package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/benmeehan/telemetry-bridge/internal/constants"
)

// RegistrationService requests device SDK registration and reacts to its outcome. A failure is
// always surfaced through the notifier; with the retry policy it is also re-requested with
// exponential backoff, otherwise the bridge waits for a manual restart.
type RegistrationService struct {
	// Configuration fields
	policy     constants.RegistrationPolicy
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration

	// Dependencies
	registrar Registrar
	notifier  Notifier
	logger    zerolog.Logger

	// Internal state for managing service lifecycle
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	attempts int
	retry    *time.Timer
	delays   *backoff.ExponentialBackOff
}

// NewRegistrationService initializes and returns a new RegistrationService instance.
func NewRegistrationService(
	policy constants.RegistrationPolicy,
	maxRetries int,
	baseDelay time.Duration,
	maxDelay time.Duration,
	registrar Registrar,
	notifier Notifier,
	logger zerolog.Logger,
) *RegistrationService {
	return &RegistrationService{
		policy:     policy,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		registrar:  registrar,
		notifier:   notifier,
		logger:     logger,
		delays:     newRetryBackOff(baseDelay, maxDelay),
	}
}

func newRetryBackOff(baseDelay, maxDelay time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = baseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.MaxInterval = maxDelay
	b.Reset()
	return b
}

// Start requests registration.
func (rs *RegistrationService) Start() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ctx != nil {
		rs.logger.Warn().Msg("Registration service is already running")
		return errors.New("registration service is already running")
	}
	rs.ctx, rs.cancel = context.WithCancel(context.Background())
	rs.attempts = 0
	rs.delays.Reset()

	rs.logger.Info().Str("policy", string(rs.policy)).Msg("Starting registration process")
	if err := rs.registrar.Register(); err != nil {
		rs.cancel()
		rs.ctx, rs.cancel = nil, nil
		return fmt.Errorf("failed to request registration: %w", err)
	}
	return nil
}

// Stop cancels any scheduled retry.
func (rs *RegistrationService) Stop() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ctx == nil {
		return errors.New("registration service is not running")
	}
	rs.cancel()
	if rs.retry != nil {
		rs.retry.Stop()
		rs.retry = nil
	}
	rs.ctx, rs.cancel = nil, nil

	rs.logger.Info().Msg("Registration service stopped successfully")
	return nil
}

// HandleRegistrationResult implements RegistrationHandler.
func (rs *RegistrationService) HandleRegistrationResult(err error) {
	rs.notifier.RegistrationResult(err)

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if err == nil {
		rs.attempts = 0
		rs.delays.Reset()
		rs.logger.Info().Msg("Registration succeeded, starting device connection")
		if err := rs.registrar.StartConnection(); err != nil {
			rs.logger.Error().Err(err).Msg("Failed to start device connection")
		}
		return
	}

	if rs.ctx == nil {
		return
	}
	if rs.policy != constants.RegistrationRetry {
		rs.logger.Warn().Msg("Registration failed, restart the bridge to register again")
		return
	}
	rs.scheduleRetryLocked()
}

// scheduleRetryLocked arms the next registration request. Every failure counts as an attempt,
// whether it came back as a registration result or the request itself could not be sent.
func (rs *RegistrationService) scheduleRetryLocked() {
	if rs.attempts >= rs.maxRetries {
		rs.logger.Error().Int("attempts", rs.attempts).Msg("Registration failed after maximum retries")
		return
	}

	delay := rs.nextDelay()
	rs.attempts++
	ctx := rs.ctx
	attempt := rs.attempts
	rs.logger.Warn().Int("attempt", attempt).Dur("delay", delay).Msg("Registration failed, retrying")

	if rs.retry != nil {
		rs.retry.Stop()
	}
	rs.retry = time.AfterFunc(delay, func() {
		rs.retryRegistration(ctx, attempt)
	})
}

func (rs *RegistrationService) retryRegistration(ctx context.Context, attempt int) {
	if ctx.Err() != nil {
		return
	}
	err := rs.registrar.Register()
	if err == nil {
		return
	}
	rs.logger.Error().Err(err).Int("attempt", attempt).Msg("Failed to request registration")

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.ctx != ctx || ctx.Err() != nil {
		return
	}
	rs.scheduleRetryLocked()
}

// nextDelay returns the delay before the next retry: base * 2^attempt with jitter, never more
// than the maximum.
func (rs *RegistrationService) nextDelay() time.Duration {
	d := rs.delays.NextBackOff()
	if d < 0 || d > rs.maxDelay {
		return rs.maxDelay
	}
	return d
}
