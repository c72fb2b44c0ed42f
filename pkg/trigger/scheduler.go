package trigger

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"marginrisk/pkg/fixedpoint"
	"marginrisk/pkg/identity"
	"marginrisk/pkg/riskerr"
)

// Candidate is an untried TCS slot the scheduler may admit for preparation.
type Candidate struct {
	Account  identity.Address
	TCSIndex int
	Volume   fixedpoint.Q
}

// PreparedJob is a candidate that cleared preparation and is ready for
// execution.
type PreparedJob struct {
	Candidate Candidate
	Result    any
}

// PrepareFunc runs one candidate's preparation (§4.9's "fetch, re-verify,
// build health cache, size both sides, quote, accept-or-reject"). It must
// honor ctx cancellation/timeout.
type PrepareFunc func(ctx context.Context, c Candidate) (any, error)

// Scheduler is the single-threaded cooperative admit/drain loop of §4.9: at
// most MaxPrepared concurrent preparation tasks, and at most MaxVolume of
// combined pending+prepared quote value outstanding at any instant. It is
// grounded in the teacher's services/swapd/oracle.Manager Run/Tick loop,
// generalized from "poll every interval" to "admit bounded concurrent work
// until nothing more fits, then drain."
type Scheduler struct {
	MaxPrepared int
	MaxVolume   fixedpoint.Q

	Prepare PrepareFunc
	Tracker *ErrorTracker
	Metrics *Metrics

	// randFloat64 is overridable in tests for deterministic weighted
	// sampling; production code leaves it nil and gets math/rand.Float64.
	randFloat64 func() float64

	paused atomic.Bool
}

// Pause stops Run from admitting new candidates; jobs already in flight
// still drain. Resume lifts it. Safe to call concurrently with Run, for the
// control API's POST /v1/scheduler/pause and /resume.
func (s *Scheduler) Pause() { s.paused.Store(true) }

// Resume lifts a prior Pause.
func (s *Scheduler) Resume() { s.paused.Store(false) }

// Paused reports the current admit gate, for the status endpoint.
func (s *Scheduler) Paused() bool { return s.paused.Load() }

// Status is the snapshot the control API's GET /v1/scheduler/status
// endpoint serializes.
type Status struct {
	Paused      bool  `json:"paused"`
	MaxPrepared int   `json:"max_prepared"`
	MaxVolume   int64 `json:"max_volume"`
}

// Status reports the scheduler's current configuration and admit gate.
func (s *Scheduler) Status() Status {
	return Status{
		Paused:      s.paused.Load(),
		MaxPrepared: s.MaxPrepared,
		MaxVolume:   s.MaxVolume.CeilToInt64(),
	}
}

type prepareOutcome struct {
	candidate Candidate
	result    any
	err       error
}

// Run drains candidates until none remain untried and nothing is pending,
// returning every candidate that prepared successfully. It never exceeds
// MaxPrepared concurrent preparation tasks or MaxVolume combined
// pending+prepared volume (§8 property 8).
func (s *Scheduler) Run(ctx context.Context, candidates []Candidate) ([]PreparedJob, error) {
	randFloat64 := s.randFloat64
	if randFloat64 == nil {
		randFloat64 = rand.Float64
	}

	untried := make([]Candidate, len(candidates))
	copy(untried, candidates)
	picked := make([]bool, len(untried))

	results := make(chan prepareOutcome)
	g, gctx := errgroup.WithContext(ctx)

	var prepared []PreparedJob
	pendingCount := 0
	pendingVolume := fixedpoint.Zero()
	preparedVolume := fixedpoint.Zero()

	for {
		admitted := false
		if pendingCount < s.MaxPrepared && !s.paused.Load() {
			headroom := s.MaxVolume.Sub(pendingVolume).Sub(preparedVolume)
			if idx, ok := pickWeighted(untried, picked, headroom, randFloat64); ok {
				cand := untried[idx]
				picked[idx] = true
				pendingVolume = pendingVolume.Add(cand.Volume)
				pendingCount++
				if s.Metrics != nil {
					s.Metrics.Admitted.Inc()
					s.Metrics.PendingVolume.Set(pendingVolume.Float64())
				}
				g.Go(func() error {
					start := time.Now()
					result, err := s.Prepare(gctx, cand)
					if s.Metrics != nil {
						s.Metrics.PreparationLatency.Observe(time.Since(start).Seconds())
					}
					select {
					case results <- prepareOutcome{candidate: cand, result: result, err: err}:
					case <-gctx.Done():
					}
					return nil
				})
				admitted = true
			}
		}
		if admitted {
			continue
		}
		if pendingCount == 0 {
			break
		}
		select {
		case outcome := <-results:
			pendingCount--
			pendingVolume = pendingVolume.Sub(outcome.candidate.Volume)
			if s.Metrics != nil {
				s.Metrics.PendingVolume.Set(pendingVolume.Float64())
			}
			if outcome.err != nil {
				if s.Tracker != nil {
					s.Tracker.RecordFailure(outcome.candidate.Account)
				}
				if s.Metrics != nil {
					kind, ok := riskerr.KindOf(outcome.err)
					label := "unknown"
					if ok {
						label = kind.String()
					}
					s.Metrics.Failed.WithLabelValues(label).Inc()
				}
				continue
			}
			preparedVolume = preparedVolume.Add(outcome.candidate.Volume)
			if s.Metrics != nil {
				s.Metrics.Prepared.Inc()
				s.Metrics.PreparedVolume.Set(preparedVolume.Float64())
			}
			prepared = append(prepared, PreparedJob{Candidate: outcome.candidate, Result: outcome.result})
		case <-ctx.Done():
			_ = g.Wait()
			return prepared, ctx.Err()
		}
	}

	if err := g.Wait(); err != nil {
		return prepared, err
	}
	return prepared, nil
}

// pickWeighted implements §9's "weighted sampling" design note: a
// cumulative-weight draw over untried candidates, with weight zero for
// anything already picked or too large to fit in headroom. When every
// weight is zero it reports ok=false, which the caller treats as "no new
// job" and falls through to draining.
func pickWeighted(candidates []Candidate, picked []bool, headroom fixedpoint.Q, randFloat64 func() float64) (int, bool) {
	type weighted struct {
		idx    int
		weight float64
	}
	var eligible []weighted
	total := 0.0
	for i, c := range candidates {
		if picked[i] {
			continue
		}
		if c.Volume.Sign() <= 0 || c.Volume.Cmp(headroom) > 0 {
			continue
		}
		w := c.Volume.Float64()
		eligible = append(eligible, weighted{idx: i, weight: w})
		total += w
	}
	if len(eligible) == 0 || total <= 0 {
		return 0, false
	}
	r := randFloat64() * total
	acc := 0.0
	for _, e := range eligible {
		acc += e.weight
		if r <= acc {
			return e.idx, true
		}
	}
	return eligible[len(eligible)-1].idx, true
}
