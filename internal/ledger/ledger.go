package ledger

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/verte-zerg/arcade/internal/model"
)

// StorageBudget caps the combined encoded size of lessons and homework.
const StorageBudget = 5 * 1024 * 1024

// Options tunes a Ledger.
type Options struct {
	// Required is the per-skill completion target of new courses.
	Required int
	// Now returns the current time; used for the quota day boundary.
	Now func() time.Time
}

// Ledger groups the per-user stores over one repository.
type Ledger struct {
	Profiles *ProfileStore
	Courses  *CourseLedger
	Lessons  *LessonArchive
	Homework *HomeworkArchive
	Badges   *Archive[model.Badge]
}

// New wires every store over repo.
func New(repo Repository, opts Options) *Ledger {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	courses := &CourseLedger{repo: repo, required: opts.Required}
	return &Ledger{
		Profiles: &ProfileStore{repo: repo, courses: courses, now: now},
		Courses:  courses,
		Lessons:  newLessonArchive(repo),
		Homework: newHomeworkArchive(repo),
		Badges:   newBadgeArchive(repo),
	}
}

// Snapshot loads the complete local state of a user.
func (l *Ledger) Snapshot(ctx context.Context, userID string) (model.Snapshot, error) {
	var snap model.Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		profile, err := l.Profiles.Load(gctx, userID)
		if err != nil {
			return err
		}
		snap.Profile = &profile
		return nil
	})
	g.Go(func() error {
		course, err := l.Courses.Load(gctx, userID)
		if err != nil {
			return err
		}
		snap.Course = &course
		return nil
	})
	g.Go(func() error {
		lessons, err := l.Lessons.All(gctx, userID)
		snap.Lessons = lessons
		return err
	})
	g.Go(func() error {
		homework, err := l.Homework.All(gctx, userID)
		snap.Homework = homework
		return err
	})
	g.Go(func() error {
		badges, err := l.Badges.All(gctx, userID)
		snap.Badges = badges
		return err
	})
	if err := g.Wait(); err != nil {
		return model.Snapshot{}, err
	}
	return snap, nil
}

// Restore replaces local state with the parts present in snap.
func (l *Ledger) Restore(ctx context.Context, userID string, snap model.Snapshot) error {
	if snap.Profile != nil && snap.Profile.Level.Valid() {
		if err := l.Profiles.Restore(ctx, userID, *snap.Profile); err != nil {
			return err
		}
	}
	if snap.Course != nil {
		if err := l.Courses.Restore(ctx, userID, *snap.Course); err != nil {
			return err
		}
	}
	if snap.Lessons != nil {
		if err := l.Lessons.Replace(ctx, userID, snap.Lessons); err != nil {
			return err
		}
	}
	if snap.Homework != nil {
		if err := l.Homework.Replace(ctx, userID, snap.Homework); err != nil {
			return err
		}
	}
	if snap.Badges != nil {
		if err := l.Badges.Replace(ctx, userID, snap.Badges); err != nil {
			return err
		}
	}
	return nil
}

// CheckStorage returns ErrStorageFull once archived lessons and homework reach StorageBudget.
func (l *Ledger) CheckStorage(ctx context.Context, userID string) error {
	lessons, err := l.Lessons.Size(ctx, userID)
	if err != nil {
		return err
	}
	homework, err := l.Homework.Size(ctx, userID)
	if err != nil {
		return err
	}
	if lessons+homework >= StorageBudget {
		return ErrStorageFull
	}
	return nil
}
