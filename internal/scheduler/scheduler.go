// Package scheduler hosts the coordinator's cron-scheduled periodic jobs:
// the funding-fee engine (spec.md §4.5) is registered here rather than
// owning a goroutine and a ticker. The liquidation monitor is not
// registered here; it runs its own lnd/ticker loop. This mirrors how lnd
// centralises its periodic maintenance
// (channel graph pruning, mission-control bookkeeping) behind one
// scheduler rather than ad-hoc goroutines per subsystem.
package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// Scheduler runs named cron jobs and surfaces the first registration
// error it encounters.
type Scheduler struct {
	cron *cron.Cron
}

// New returns a Scheduler using cron's standard 5-field parser (no
// seconds field), which also accepts descriptors such as "@every 1m".
func New() *Scheduler {
	return &Scheduler{cron: cron.New()}
}

// Register adds job under spec (standard 5-field cron expression).
func (s *Scheduler) Register(name, spec string, job func()) error {
	_, err := s.cron.AddFunc(spec, job)
	if err != nil {
		return fmt.Errorf("scheduler: register %s: %w", name, err)
	}
	return nil
}

// Start begins running registered jobs in their own goroutines.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler, waiting for any in-flight job to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
