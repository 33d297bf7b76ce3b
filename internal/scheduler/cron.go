// Courier - Real-time Messaging and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/courier

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tomtom215/courier/internal/logging"
)

// Job is one scheduled unit of work.
type Job struct {
	Name string

	// Spec is a cron expression; both 5-field and 6-field (with seconds)
	// forms and descriptors like @daily are accepted.
	Spec string

	Run func(ctx context.Context)
}

// CronRunner drives the scheduled jobs. It is a suture service: Serve runs
// until the context is canceled, and all in-flight jobs observe the
// cancellation through their context.
type CronRunner struct {
	jobs []Job
}

// NewCronRunner creates a runner for the given jobs.
func NewCronRunner(jobs ...Job) *CronRunner {
	return &CronRunner{jobs: jobs}
}

// String implements suture's service naming.
func (r *CronRunner) String() string {
	return "scheduler-cron"
}

// Serve registers the jobs and runs the cron loop until ctx is canceled.
func (r *CronRunner) Serve(ctx context.Context) error {
	parser := cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)
	c := cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC))

	for _, job := range r.jobs {
		job := job
		_, err := c.AddFunc(job.Spec, func() {
			start := time.Now()
			logging.Debug().Str("job", job.Name).Msg("scheduled job starting")
			job.Run(ctx)
			logging.Info().Str("job", job.Name).Dur("elapsed", time.Since(start)).Msg("scheduled job finished")
		})
		if err != nil {
			return fmt.Errorf("failed to register job %q (%q): %w", job.Name, job.Spec, err)
		}
	}

	logging.Info().Int("jobs", len(r.jobs)).Msg("cron runner started")
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	logging.Info().Msg("cron runner stopped")
	return ctx.Err()
}
