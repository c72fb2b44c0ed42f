package trigger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marginrisk/pkg/fixedpoint"
	"marginrisk/pkg/identity"
	"marginrisk/pkg/trigger"
)

func tcsAddr(b byte) identity.Address {
	buf := make([]byte, 20)
	for i := range buf {
		buf[i] = b
	}
	return identity.MustNewAddress(identity.MainPrefix, buf)
}

// TestSchedulerNeverExceedsCapacity is S6: five TCS of volumes {1,2,3,4,5},
// cap = 6, max_prepared = 2. Every admitted candidate prepares successfully;
// the scheduler must never let pending+prepared volume exceed the cap or run
// more than two preparations at once. Prepared volume stays counted against
// the cap, so only a subset (summing to at most 6) is prepared, and it stops
// only once no remaining candidate fits the leftover headroom.
func TestSchedulerNeverExceedsCapacity(t *testing.T) {
	volumes := []int64{1, 2, 3, 4, 5}
	candidates := make([]trigger.Candidate, len(volumes))
	for i, v := range volumes {
		candidates[i] = trigger.Candidate{Account: tcsAddr(byte(i + 1)), TCSIndex: i, Volume: fixedpoint.FromInt64(v)}
	}

	var mu sync.Mutex
	maxInFlight := 0
	inFlight := 0

	sched := &trigger.Scheduler{
		MaxPrepared: 2,
		MaxVolume:   fixedpoint.FromInt64(6),
		Prepare: func(ctx context.Context, c trigger.Candidate) (any, error) {
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()

			mu.Lock()
			inFlight--
			mu.Unlock()
			return c, nil
		},
	}

	prepared, err := sched.Run(context.Background(), candidates)
	require.NoError(t, err)
	require.NotEmpty(t, prepared)
	require.LessOrEqual(t, maxInFlight, 2, "never more than max_prepared concurrent preparations")

	seen := make(map[int]bool)
	var preparedVolume int64
	for _, job := range prepared {
		seen[job.Candidate.TCSIndex] = true
		preparedVolume += job.Candidate.Volume.FloorToInt64()
	}
	require.Len(t, seen, len(prepared), "no candidate is prepared twice")
	require.LessOrEqual(t, preparedVolume, int64(6), "prepared volume never exceeds the cap")
	for i, v := range volumes {
		if !seen[i] {
			require.Greater(t, v, 6-preparedVolume, "an unprepared candidate did not fit the leftover headroom")
		}
	}
}

// TestSchedulerRejectsOversizedCandidate covers the "weight zero for
// anything that doesn't fit headroom" rule: a single candidate larger than
// max_volume can never be admitted and the scheduler terminates instead of
// spinning.
func TestSchedulerRejectsOversizedCandidate(t *testing.T) {
	candidates := []trigger.Candidate{
		{Account: tcsAddr(1), TCSIndex: 0, Volume: fixedpoint.FromInt64(10)},
	}
	sched := &trigger.Scheduler{
		MaxPrepared: 2,
		MaxVolume:   fixedpoint.FromInt64(6),
		Prepare: func(ctx context.Context, c trigger.Candidate) (any, error) {
			return c, nil
		},
	}
	prepared, err := sched.Run(context.Background(), candidates)
	require.NoError(t, err)
	require.Empty(t, prepared)
}

// TestSchedulerRecordsFailures covers the error-tracker wiring: a candidate
// whose preparation fails is recorded against its account and excluded from
// the prepared set, without blocking the rest of the batch.
func TestSchedulerRecordsFailures(t *testing.T) {
	failing := tcsAddr(9)
	errPreparationFailed := errors.New("preparation failed")
	candidates := []trigger.Candidate{
		{Account: failing, TCSIndex: 0, Volume: fixedpoint.FromInt64(2)},
		{Account: tcsAddr(2), TCSIndex: 1, Volume: fixedpoint.FromInt64(3)},
	}
	tracker := trigger.NewErrorTracker(time.Hour, 1)
	sched := &trigger.Scheduler{
		MaxPrepared: 2,
		MaxVolume:   fixedpoint.FromInt64(6),
		Tracker:     tracker,
		Prepare: func(ctx context.Context, c trigger.Candidate) (any, error) {
			if c.Account.Equal(failing) {
				return nil, errPreparationFailed
			}
			return c, nil
		},
	}

	prepared, err := sched.Run(context.Background(), candidates)
	require.NoError(t, err)
	require.Len(t, prepared, 1)
	require.True(t, prepared[0].Candidate.Account.Equal(tcsAddr(2)))
	require.True(t, tracker.Throttled(failing))
}
