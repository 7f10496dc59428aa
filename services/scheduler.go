// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartReconciliationScheduler periodically rebuilds cached leaderboard
// totals from approved proofs. The incremental bump on approval keeps totals
// current; this job repairs any drift (crashed approvals, manual DB fixes).
func (s *LeaderboardService) StartReconciliationScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every 15 minutes: recompute totals from the proof table
	_, _ = sched.NewJob(
		gocron.DurationJob(15*time.Minute),
		gocron.NewTask(func() {
			if err := s.Recalculate(); err != nil {
				log.Printf("[Scheduler] Leaderboard reconciliation failed: %v", err)
				return
			}
			log.Println("[Scheduler] Leaderboard totals reconciled")
		}),
	)
}
