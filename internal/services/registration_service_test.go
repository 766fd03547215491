package services

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/telemetry-bridge/internal/constants"
	"github.com/benmeehan/telemetry-bridge/internal/mocks"
)

type countingRegistrar struct {
	registers   atomic.Int64
	connections atomic.Int64
	registerErr error
}

func (r *countingRegistrar) Register() error {
	r.registers.Add(1)
	return r.registerErr
}

func (r *countingRegistrar) StartConnection() error {
	r.connections.Add(1)
	return nil
}

func newRegistration(t *testing.T, policy constants.RegistrationPolicy, maxRetries int) (*RegistrationService, *countingRegistrar, *mocks.Notifier) {
	t.Helper()
	registrar := &countingRegistrar{}
	notifier := &mocks.Notifier{}
	notifier.On("RegistrationResult", mock.Anything).Return()

	rs := NewRegistrationService(policy, maxRetries, 5*time.Millisecond, 20*time.Millisecond, registrar, notifier, zerolog.Nop())
	t.Cleanup(func() { _ = rs.Stop() })
	return rs, registrar, notifier
}

func TestRegistrationService_StartRequestsRegistration(t *testing.T) {
	rs, registrar, _ := newRegistration(t, constants.RegistrationManual, 0)

	require.NoError(t, rs.Start())
	assert.EqualValues(t, 1, registrar.registers.Load())
	assert.EqualError(t, rs.Start(), "registration service is already running")
}

func TestRegistrationService_StartFailure(t *testing.T) {
	rs, registrar, _ := newRegistration(t, constants.RegistrationManual, 0)
	registrar.registerErr = errors.New("gateway offline")

	err := rs.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, registrar.registerErr)

	registrar.registerErr = nil
	require.NoError(t, rs.Start(), "a failed start can be retried")
}

func TestRegistrationService_SuccessStartsConnection(t *testing.T) {
	rs, registrar, notifier := newRegistration(t, constants.RegistrationManual, 0)
	require.NoError(t, rs.Start())

	rs.HandleRegistrationResult(nil)

	assert.EqualValues(t, 1, registrar.connections.Load())
	notifier.AssertCalled(t, "RegistrationResult", nil)
}

func TestRegistrationService_ManualPolicyDoesNotRetry(t *testing.T) {
	rs, registrar, notifier := newRegistration(t, constants.RegistrationManual, 5)
	require.NoError(t, rs.Start())

	failure := errors.New("invalid app key")
	rs.HandleRegistrationResult(failure)

	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, registrar.registers.Load())
	assert.Zero(t, registrar.connections.Load())
	notifier.AssertCalled(t, "RegistrationResult", failure)
}

func TestRegistrationService_RetryPolicyRetriesUpToLimit(t *testing.T) {
	rs, registrar, notifier := newRegistration(t, constants.RegistrationRetry, 2)
	require.NoError(t, rs.Start())
	failure := errors.New("network error")

	rs.HandleRegistrationResult(failure)
	assert.Eventually(t, func() bool { return registrar.registers.Load() == 2 }, time.Second, time.Millisecond)

	rs.HandleRegistrationResult(failure)
	assert.Eventually(t, func() bool { return registrar.registers.Load() == 3 }, time.Second, time.Millisecond)

	rs.HandleRegistrationResult(failure)
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 3, registrar.registers.Load())
	notifier.AssertNumberOfCalls(t, "RegistrationResult", 3)
}

func TestRegistrationService_SuccessResetsAttempts(t *testing.T) {
	rs, registrar, _ := newRegistration(t, constants.RegistrationRetry, 1)
	require.NoError(t, rs.Start())
	failure := errors.New("network error")

	rs.HandleRegistrationResult(failure)
	assert.Eventually(t, func() bool { return registrar.registers.Load() == 2 }, time.Second, time.Millisecond)

	rs.HandleRegistrationResult(nil)
	rs.HandleRegistrationResult(failure)
	assert.Eventually(t, func() bool { return registrar.registers.Load() == 3 }, time.Second, time.Millisecond)
}

func TestRegistrationService_StopCancelsRetry(t *testing.T) {
	registrar := &countingRegistrar{}
	notifier := &mocks.Notifier{}
	notifier.On("RegistrationResult", mock.Anything).Return()
	rs := NewRegistrationService(constants.RegistrationRetry, 3, 50*time.Millisecond, time.Second, registrar, notifier, zerolog.Nop())
	require.NoError(t, rs.Start())

	rs.HandleRegistrationResult(errors.New("network error"))
	require.NoError(t, rs.Stop())

	time.Sleep(150 * time.Millisecond)
	assert.EqualValues(t, 1, registrar.registers.Load())
	assert.EqualError(t, rs.Stop(), "registration service is not running")
}

func TestRegistrationService_BackoffBounds(t *testing.T) {
	rs := NewRegistrationService(constants.RegistrationRetry, 10, 2*time.Second, 60*time.Second,
		&countingRegistrar{}, &mocks.Notifier{}, zerolog.Nop())

	// Nominal delays double from the base delay until they reach the cap; jitter is +/-50%.
	nominal := []time.Duration{2, 4, 8, 16, 32, 60, 60, 60}
	for run := 0; run < 50; run++ {
		rs.delays.Reset()
		for i, n := range nominal {
			d := rs.nextDelay()
			assert.GreaterOrEqual(t, d, n*time.Second/2, "retry %d", i)
			assert.LessOrEqual(t, d, 60*time.Second, "retry %d", i)
			assert.LessOrEqual(t, d, n*time.Second*3/2, "retry %d", i)
		}
	}
}

func TestRegistrationService_FailedRetryRequestCountsAsAttempt(t *testing.T) {
	var requests atomic.Int64
	registrar := &mocks.Registrar{}
	registrar.On("Register").Run(func(mock.Arguments) { requests.Add(1) }).Return(nil).Once()
	registrar.On("Register").Run(func(mock.Arguments) { requests.Add(1) }).Return(errors.New("buffer full"))
	notifier := &mocks.Notifier{}
	notifier.On("RegistrationResult", mock.Anything).Return()

	rs := NewRegistrationService(constants.RegistrationRetry, 5, 5*time.Millisecond, 20*time.Millisecond, registrar, notifier, zerolog.Nop())
	require.NoError(t, rs.Start())
	defer rs.Stop()

	rs.HandleRegistrationResult(errors.New("network error"))

	// One request from Start, then every retry fails to send and schedules the next one.
	assert.Eventually(t, func() bool { return requests.Load() == 6 }, time.Second, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 6, requests.Load())
	registrar.AssertNumberOfCalls(t, "Register", 6)
	notifier.AssertNumberOfCalls(t, "RegistrationResult", 1)
}

func TestRegistrationService_StartConnectionFailureIsNotFatal(t *testing.T) {
	registrar := &mocks.Registrar{}
	registrar.On("Register").Return(nil)
	registrar.On("StartConnection").Return(errors.New("sdk busy"))
	notifier := &mocks.Notifier{}
	notifier.On("RegistrationResult", nil).Return()

	rs := NewRegistrationService(constants.RegistrationRetry, 3, time.Millisecond, time.Millisecond, registrar, notifier, zerolog.Nop())
	require.NoError(t, rs.Start())
	defer rs.Stop()

	rs.HandleRegistrationResult(nil)

	registrar.AssertExpectations(t)
	notifier.AssertExpectations(t)
	registrar.AssertNumberOfCalls(t, "Register", 1)
}
