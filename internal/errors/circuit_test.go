package errors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("llm", WithMaxFailures(3), WithResetTimeout(time.Hour))

	boom := errors.New("upstream down")
	for i := 0; i < 3; i++ {
		err := cb.Execute(func() error { return boom })
		require.ErrorIs(t, err, boom)
	}

	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())
	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitOpen)
}

func TestCircuitBreakerRecoversAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker("llm", WithMaxFailures(1), WithResetTimeout(10*time.Millisecond))

	_ = cb.Execute(func() error { return errors.New("down") })
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	// A successful probe closes the circuit.
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("llm", WithMaxFailures(1), WithResetTimeout(10*time.Millisecond))

	_ = cb.Execute(func() error { return errors.New("down") })
	time.Sleep(20 * time.Millisecond)

	err := cb.Execute(func() error { return errors.New("still down") })
	require.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitExecuteWithResultFallsBack(t *testing.T) {
	cb := NewCircuitBreaker("llm", WithMaxFailures(1), WithResetTimeout(time.Hour))
	_ = cb.Execute(func() error { return errors.New("down") })
	require.Equal(t, StateOpen, cb.State())

	got, err := CircuitExecuteWithResult(cb,
		func() (string, error) { return "remote", nil },
		func() (string, error) { return "stub", nil },
	)
	require.NoError(t, err)
	assert.Equal(t, "stub", got, "open circuit must route to the fallback")
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("llm", WithMaxFailures(3))

	_ = cb.Execute(func() error { return errors.New("blip") })
	_ = cb.Execute(func() error { return errors.New("blip") })
	require.Equal(t, 2, cb.Failures())

	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, 0, cb.Failures())
	assert.Equal(t, StateClosed, cb.State())
}
