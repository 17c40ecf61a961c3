package daemon

import (
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/matrixci/internal/config"
	"git.home.luguber.info/inful/matrixci/internal/errors"
	"git.home.luguber.info/inful/matrixci/internal/logfields"
)

// Scheduler triggers periodic runs per branch through gocron.
type Scheduler struct {
	daemon    *Daemon
	scheduler gocron.Scheduler
	jobs      []gocron.Job
}

func NewScheduler(d *Daemon) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryDaemon, "failed to create scheduler")
	}
	return &Scheduler{daemon: d, scheduler: s}, nil
}

// Schedule registers one periodic job per configured schedule. Intervals were
// validated at config load time.
func (s *Scheduler) Schedule(schedules []config.Schedule) error {
	for _, sched := range schedules {
		interval, err := time.ParseDuration(sched.Every)
		if err != nil {
			return errors.WrapError(err, errors.CategoryDaemon, "invalid schedule interval").
				WithContext("branch", sched.Branch)
		}

		branch := sched.Branch
		job, err := s.scheduler.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(func() { s.fire(branch) }),
			gocron.WithName("run-"+branch),
		)
		if err != nil {
			return errors.WrapError(err, errors.CategoryDaemon, "failed to schedule periodic run").
				WithContext("branch", branch)
		}
		s.jobs = append(s.jobs, job)

		slog.Info("Scheduled periodic run",
			logfields.ScheduleID(job.ID().String()),
			logfields.Branch(branch),
			slog.Duration("every", interval))
	}
	return nil
}

// Reschedule drops all jobs and registers the new schedule set.
func (s *Scheduler) Reschedule(schedules []config.Schedule) error {
	for _, job := range s.jobs {
		if err := s.scheduler.RemoveJob(job.ID()); err != nil {
			slog.Warn("Failed to remove scheduled job",
				logfields.ScheduleID(job.ID().String()),
				logfields.Error(err))
		}
	}
	s.jobs = nil
	return s.Schedule(schedules)
}

func (s *Scheduler) Start() { s.scheduler.Start() }

func (s *Scheduler) Stop() error { return s.scheduler.Shutdown() }

// fire queues a scheduled run. The commit is resolved from the checkout at
// execution time.
func (s *Scheduler) fire(branch string) {
	slog.Info("Scheduled run firing", logfields.Branch(branch))
	if !s.daemon.TriggerRun(branch, "") {
		slog.Warn("Scheduled run dropped, daemon stopping", logfields.Branch(branch))
	}
}
