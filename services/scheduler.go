// services/scheduler.go
package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartSweepScheduler runs the retention sweep every interval. The caller
// owns the returned scheduler and must Shutdown it.
func (s *DuelService) StartSweepScheduler(interval, retention time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithClock(s.Registry.Clock()))
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			res, err := s.Registry.Sweep(ctx, retention)
			if err != nil {
				log.Printf("❌ [Scheduler] Duel sweep failed: %v", err)
				return
			}
			if res.Duels > 0 || res.Cooldowns > 0 {
				log.Printf("🧹 [Scheduler] Removed %d expired duel(s), %d stale cooldown(s)", res.Duels, res.Cooldowns)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}

	sched.Start()
	return sched, nil
}
