// Package jobs runs the scheduled background work of the matching core.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/oggyb/muzz-matchmaking/internal/app"
	"github.com/oggyb/muzz-matchmaking/internal/db"
	"github.com/oggyb/muzz-matchmaking/internal/repository"
)

const introductionsJobName = "daily-introductions"

// Generator persists one user's introductions for a day.
type Generator interface {
	Generate(ctx context.Context, user db.User, day time.Time) (int, error)
}

// Summary is the outcome of one pass over all matchable users.
type Summary struct {
	Users     int
	Generated int
	Failed    int
}

// IntroductionsJob pre-generates today's introductions for every matchable user
// so the first read of the day finds them ready.
type IntroductionsJob struct {
	appCtx    *app.AppContext
	users     *repository.UserRepository
	gen       Generator
	now       func() time.Time
	scheduler gocron.Scheduler
}

type Option func(*IntroductionsJob)

func WithClock(now func() time.Time) Option {
	return func(j *IntroductionsJob) { j.now = now }
}

func NewIntroductionsJob(appCtx *app.AppContext, gen Generator, opts ...Option) (*IntroductionsJob, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	j := &IntroductionsJob{
		appCtx:    appCtx,
		users:     repository.NewUserRepository(appCtx.DB),
		gen:       gen,
		now:       time.Now,
		scheduler: scheduler,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Start registers the job on cfg.Jobs.IntroductionsCron and starts the scheduler.
// Overlapping runs are rescheduled rather than stacked.
func (j *IntroductionsJob) Start(ctx context.Context) error {
	expr := j.appCtx.Config.Jobs.IntroductionsCron
	_, err := j.scheduler.NewJob(
		gocron.CronJob(expr, false),
		gocron.NewTask(func() {
			if _, err := j.RunOnce(ctx); err != nil {
				j.appCtx.Logger.Error("introductions job failed", "err", err)
			}
		}),
		gocron.WithName(introductionsJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule %s (%q): %w", introductionsJobName, expr, err)
	}

	j.scheduler.Start()
	j.appCtx.Logger.Info("introductions job scheduled", "cron", expr)
	return nil
}

func (j *IntroductionsJob) Stop() error {
	return j.scheduler.Shutdown()
}

// RunOnce generates today's introductions for every matchable user.
// A failure for one user is logged and counted; the pass continues.
func (j *IntroductionsJob) RunOnce(ctx context.Context) (Summary, error) {
	users, err := j.users.ListMatchable(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list matchable users: %w", err)
	}

	day := j.now().UTC()
	sum := Summary{Users: len(users)}
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		n, err := j.gen.Generate(ctx, u, day)
		if err != nil {
			sum.Failed++
			j.appCtx.Logger.Warn("generate introductions failed", "user", u.Username, "err", err)
			continue
		}
		sum.Generated += n
	}

	j.appCtx.Logger.Info("introductions job finished",
		"users", sum.Users, "generated", sum.Generated, "failed", sum.Failed)
	return sum, nil
}
