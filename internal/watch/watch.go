// Package watch runs periodic background jobs: remote pulls and the daily quota refresh.
package watch

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/verte-zerg/arcade/internal/arcade"
	"github.com/verte-zerg/arcade/internal/logger"
)

// DefaultPullEvery is the pull interval used when none is configured.
const DefaultPullEvery = 5 * time.Minute

// jobTimeout bounds a single run over all users.
const jobTimeout = time.Minute

// UserLister lists the users with local state.
type UserLister interface {
	Users(ctx context.Context) ([]string, error)
}

// Config tunes the watcher.
type Config struct {
	PullEvery time.Duration
	// Users restricts the jobs to these users. Empty means every local user.
	Users    []string
	Location *time.Location
}

// Watcher keeps local state fresh while the process runs.
type Watcher struct {
	scheduler *gocron.Scheduler
	session   *arcade.Session
	users     UserLister
	cfg       Config
	log       *logger.Logger
}

// New builds a watcher. users may be nil when cfg.Users is set.
func New(session *arcade.Session, users UserLister, cfg Config, log *logger.Logger) *Watcher {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.PullEvery <= 0 {
		cfg.PullEvery = DefaultPullEvery
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Watcher{
		scheduler: gocron.NewScheduler(cfg.Location),
		session:   session,
		users:     users,
		cfg:       cfg,
		log:       log.With("service", "Watcher"),
	}
}

// Start schedules the pull job at the configured interval and the quota refresh just
// after local midnight, then runs them in the background. The pull job runs once
// immediately.
func (w *Watcher) Start() error {
	if _, err := w.scheduler.Every(w.cfg.PullEvery).SingletonMode().Do(w.runPull); err != nil {
		return err
	}
	if _, err := w.scheduler.Every(1).Day().At("00:00:05").WaitForSchedule().Do(w.runRefresh); err != nil {
		return err
	}
	w.scheduler.StartAsync()
	w.log.Info("watching", "pull_every", w.cfg.PullEvery)
	return nil
}

// Stop halts the scheduler and waits for running jobs.
func (w *Watcher) Stop() {
	w.scheduler.Stop()
	w.session.Close()
}

// PullAll pulls the remote copy for every watched user. Failures are logged and
// joined; one user failing does not stop the others.
func (w *Watcher) PullAll(ctx context.Context) error {
	ids, err := w.userIDs(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, id := range ids {
		replaced, err := w.session.Pull(ctx, id)
		if err != nil {
			w.log.Warn("pull failed", "user_id", id, "error", err)
			errs = append(errs, err)
			continue
		}
		if replaced {
			w.log.Debug("local state replaced", "user_id", id)
		}
	}
	return errors.Join(errs...)
}

// RefreshAll refreshes the cached quota of every watched user.
func (w *Watcher) RefreshAll(ctx context.Context) error {
	ids, err := w.userIDs(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, id := range ids {
		remaining, err := w.session.RefreshQuota(ctx, id)
		if err != nil {
			w.log.Warn("quota refresh failed", "user_id", id, "error", err)
			errs = append(errs, err)
			continue
		}
		w.log.Debug("quota refreshed", "user_id", id, "remaining", remaining)
	}
	return errors.Join(errs...)
}

func (w *Watcher) runPull() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	_ = w.PullAll(ctx)
}

func (w *Watcher) runRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	_ = w.RefreshAll(ctx)
}

func (w *Watcher) userIDs(ctx context.Context) ([]string, error) {
	if len(w.cfg.Users) > 0 {
		return w.cfg.Users, nil
	}
	if w.users == nil {
		return nil, nil
	}
	return w.users.Users(ctx)
}
