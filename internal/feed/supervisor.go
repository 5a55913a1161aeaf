package feed

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Supervised wraps a Source factory with automatic restart on failure.
type Supervised struct {
	factory     func() Source
	restartWait time.Duration
	maxRestarts int
	log         *zap.Logger
}

// NewSupervised creates a supervised wrapper around a source factory.
// On source failure, it waits restartWait before creating a new source.
// maxRestarts of 0 means unlimited restarts.
func NewSupervised(factory func() Source, restartWait time.Duration, maxRestarts int, log *zap.Logger) *Supervised {
	if log == nil {
		log = zap.NewNop()
	}
	return &Supervised{
		factory:     factory,
		restartWait: restartWait,
		maxRestarts: maxRestarts,
		log:         log,
	}
}

// Observations starts the supervised loop. The returned channel carries
// observations across restarts and is closed when ctx is cancelled or max
// restarts are exceeded.
func (s *Supervised) Observations(ctx context.Context) (<-chan Observation, error) {
	out := make(chan Observation, 64)

	go func() {
		defer close(out)

		restarts := 0
		for {
			if s.maxRestarts > 0 && restarts >= s.maxRestarts {
				s.log.Error("observation feed exceeded max restarts", zap.Int("max", s.maxRestarts))
				return
			}

			obs, err := s.factory().Observations(ctx)
			if err != nil {
				s.log.Error("failed to start observation feed", zap.Error(err), zap.Int("restart_count", restarts))
				if !s.wait(ctx) {
					return
				}
				restarts++
				continue
			}

			s.log.Info("observation feed started", zap.Int("restart_count", restarts))

			for o := range obs {
				select {
				case out <- o:
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}

			s.log.Warn("observation feed stopped, restarting", zap.Int("restart_count", restarts))
			restarts++
			if !s.wait(ctx) {
				return
			}
		}
	}()

	return out, nil
}

func (s *Supervised) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(s.restartWait):
		return true
	}
}
