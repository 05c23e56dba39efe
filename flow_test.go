package cellport

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type pinRecorder struct {
	levels []bool
	err    error
}

func (r *pinRecorder) SetRTS(asserted bool) error {
	if r.err != nil {
		return r.err
	}
	r.levels = append(r.levels, asserted)
	return nil
}

func TestFlowDecide(t *testing.T) {
	f := NewFlowController(1024, 256, 64, &pinRecorder{})

	tests := []struct {
		name      string
		current   FlowState
		occupancy int
		want      FlowState
	}{
		{"empty stays asserted", FlowAsserted, 0, FlowAsserted},
		{"below limit stays asserted", FlowAsserted, 767, FlowAsserted},
		{"free equals threshold deasserts", FlowAsserted, 768, FlowDeasserted},
		{"full deasserts", FlowAsserted, 1024, FlowDeasserted},
		{"inside band stays deasserted", FlowDeasserted, 705, FlowDeasserted},
		{"free equals threshold plus hysteresis asserts", FlowDeasserted, 704, FlowAsserted},
		{"empty asserts", FlowDeasserted, 0, FlowAsserted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Decide(tt.current, tt.occupancy); got != tt.want {
				t.Errorf("Decide(%v, %d) = %v, want %v", tt.current, tt.occupancy, got, tt.want)
			}
		})
	}
}

// Capacity 1024, threshold 256: 800 bytes buffered de-asserts, draining to
// 200 re-asserts.
func TestFlowThresholdScenario(t *testing.T) {
	pin := &pinRecorder{}
	f := NewFlowController(1024, 256, 64, pin)

	state, changed, err := f.Evaluate(800)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, FlowDeasserted, state)

	state, changed, err = f.Evaluate(200)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, FlowAsserted, state)

	if diff := cmp.Diff([]bool{false, true}, pin.levels); diff != "" {
		t.Errorf("pin levels (-want +got):\n%s", diff)
	}
	require.Equal(t, int64(2), f.Transitions())
}

func TestFlowNoOscillationInBand(t *testing.T) {
	pin := &pinRecorder{}
	f := NewFlowController(1024, 256, 64, pin)

	_, _, err := f.Evaluate(1000)
	require.NoError(t, err)

	// Drain slowly through the band and refill inside it.
	for occ := 1000; occ > 705; occ-- {
		_, changed, err := f.Evaluate(occ)
		require.NoError(t, err)
		require.False(t, changed, "toggled at occupancy %d", occ)
	}
	for occ := 705; occ < 760; occ++ {
		_, changed, err := f.Evaluate(occ)
		require.NoError(t, err)
		require.False(t, changed, "toggled at occupancy %d", occ)
	}
	require.Equal(t, []bool{false}, pin.levels)
}

func TestFlowDisabledWithoutPin(t *testing.T) {
	f := NewFlowController(1024, 0, 1, nil)

	state, changed, err := f.Evaluate(1024)
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, FlowAsserted, state)
	require.NoError(t, f.assertInitial())
}

func TestFlowZeroThresholdDeassertsOnlyWhenFull(t *testing.T) {
	pin := &pinRecorder{}
	f := NewFlowController(16, 0, 1, pin)

	_, changed, _ := f.Evaluate(15)
	require.False(t, changed)

	state, changed, _ := f.Evaluate(16)
	require.True(t, changed)
	require.Equal(t, FlowDeasserted, state)

	state, changed, _ = f.Evaluate(15)
	require.True(t, changed)
	require.Equal(t, FlowAsserted, state)
}

func TestFlowPinErrorKeepsState(t *testing.T) {
	pin := &pinRecorder{err: errors.New("gpio busy")}
	f := NewFlowController(1024, 256, 64, pin)

	state, changed, err := f.Evaluate(900)
	require.Error(t, err)
	require.False(t, changed)
	require.Equal(t, FlowAsserted, state)
	require.Equal(t, FlowAsserted, f.State())

	// Retried on the next evaluation once the pin recovers.
	pin.err = nil
	state, changed, err = f.Evaluate(900)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, FlowDeasserted, state)
}

func TestFlowAssertInitial(t *testing.T) {
	pin := &pinRecorder{}
	f := NewFlowController(1024, 256, 64, pin)
	require.NoError(t, f.assertInitial())
	require.Equal(t, []bool{true}, pin.levels)
}

type occupancyFunc func() int

func (fn occupancyFunc) Occupancy() int { return fn() }

func TestFlowTrackSamplesUnderLatch(t *testing.T) {
	pin := &pinRecorder{}
	f := NewFlowController(1024, 256, 64, pin)

	state, changed, err := f.Track(occupancyFunc(func() int {
		require.False(t, f.mu.TryLock(), "occupancy sampled outside the latch")
		return 800
	}))
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, FlowDeasserted, state)

	// A consumer that drained before the producer got the latch wins.
	state, changed, err = f.Track(occupancyFunc(func() int { return 0 }))
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, FlowAsserted, state)
	require.Equal(t, []bool{false, true}, pin.levels)
}

func TestFlowTrackDisabled(t *testing.T) {
	f := NewFlowController(16, 4, 1, nil)
	state, changed, err := f.Track(occupancyFunc(func() int { return 16 }))
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, FlowAsserted, state)
}
