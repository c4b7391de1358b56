package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func ok(b *Breaker) error {
	_, err := Do(b, func() (string, error) { return "ok", nil })
	return err
}

func fail(b *Breaker) error {
	_, err := Do(b, func() (string, error) { return "", errBoom })
	return err
}

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	tests := []struct {
		name  string
		calls []bool // true = success
		want  State
	}{
		{"stays closed on successes", []bool{true, true, true}, Closed},
		{"stays closed below the threshold", []bool{false, false}, Closed},
		{"opens at the threshold", []bool{false, false, false}, Open},
		{"success resets the run", []bool{false, false, true, false, false}, Closed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(Config{TripAfter: 3, Cooldown: time.Minute})
			for _, success := range tt.calls {
				if success {
					require.NoError(t, ok(b))
				} else {
					require.ErrorIs(t, fail(b), errBoom)
				}
			}
			assert.Equal(t, tt.want, b.State())
		})
	}
}

func TestBreakerShedsWhileOpen(t *testing.T) {
	b := New(Config{TripAfter: 1, Cooldown: time.Minute})
	require.Error(t, fail(b))
	require.Equal(t, Open, b.State())

	invoked := false
	_, err := Do(b, func() (string, error) {
		invoked = true
		return "ok", nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, invoked)
}

func TestBreakerRecoversThroughProbes(t *testing.T) {
	b := New(Config{TripAfter: 1, Cooldown: 10 * time.Millisecond, Probes: 2})
	require.Error(t, fail(b))
	require.Equal(t, Open, b.State())

	require.Eventually(t, func() bool { return b.State() == Probing },
		time.Second, time.Millisecond)

	require.NoError(t, ok(b))
	assert.Equal(t, Probing, b.State())
	require.NoError(t, ok(b))
	assert.Equal(t, Closed, b.State())
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	b := New(Config{TripAfter: 1, Cooldown: 10 * time.Millisecond, Probes: 2})
	require.Error(t, fail(b))

	require.Eventually(t, func() bool { return b.State() == Probing },
		time.Second, time.Millisecond)

	require.Error(t, fail(b))
	assert.Equal(t, Open, b.State())
}

func TestBreakerSaturatesProbeAllowance(t *testing.T) {
	b := New(Config{TripAfter: 1, Cooldown: time.Millisecond, Probes: 1})
	require.Error(t, fail(b))

	require.Eventually(t, func() bool { return b.State() == Probing },
		time.Second, time.Millisecond)

	started := make(chan struct{})
	release := make(chan struct{})
	settled := make(chan error, 1)
	go func() {
		_, err := Do(b, func() (string, error) {
			close(started)
			<-release
			return "ok", nil
		})
		settled <- err
	}()

	<-started
	_, err := Do(b, func() (string, error) { return "ok", nil })
	assert.ErrorIs(t, err, ErrSaturated)

	close(release)
	require.NoError(t, <-settled)
	assert.Equal(t, Closed, b.State())
}

func TestBreakerPanicCountsAsFailure(t *testing.T) {
	b := New(Config{TripAfter: 1, Cooldown: time.Minute})
	require.Panics(t, func() {
		_, _ = Do(b, func() (string, error) { panic("kaboom") })
	})
	assert.Equal(t, Open, b.State())
}

func TestBreakerReportsTransitions(t *testing.T) {
	var seen []string
	b := New(Config{
		TripAfter: 2,
		Cooldown:  10 * time.Millisecond,
		OnChange: func(from, to State) {
			seen = append(seen, from.String()+"->"+to.String())
		},
	})

	require.Error(t, fail(b))
	require.Error(t, fail(b))
	require.Eventually(t, func() bool { return b.State() == Probing },
		time.Second, time.Millisecond)
	require.NoError(t, ok(b))

	assert.Equal(t, []string{"closed->open", "open->probing", "probing->closed"}, seen)
}
