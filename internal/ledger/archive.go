package ledger

import (
	"context"
	"encoding/json"
	"iter"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/arcade/internal/model"
)

// ArchiveLimit bounds every archive; older entries are dropped first.
const ArchiveLimit = 50

// Filter narrows archive listings by case-insensitive substring match.
type Filter struct {
	Level string
	Skill string
}

func (f Filter) match(level model.Level, skill model.Skill) bool {
	return containsFold(string(level), f.Level) && containsFold(string(skill), f.Skill)
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(strings.TrimSpace(sub)))
}

// Archive is a bounded append-only log stored as one JSON array per user.
type Archive[T any] struct {
	repo  Repository
	key   string
	limit int
	stamp func(T) time.Time
	match func(T, Filter) bool
}

// Append stores entry at the end of the archive, evicting the oldest past the limit.
func (a *Archive[T]) Append(ctx context.Context, userID string, entry T) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = a.repo.Append(ctx, userID, a.key, raw, a.limit)
	return err
}

// All returns the archive in stored order, oldest first. A corrupt archive reads as empty.
func (a *Archive[T]) All(ctx context.Context, userID string) ([]T, error) {
	var entries []T
	ok, err := loadJSON(ctx, a.repo, userID, a.key, &entries)
	if err != nil {
		return nil, err
	}
	if !ok || entries == nil {
		entries = []T{}
	}
	return entries, nil
}

// List returns the entries matching f, newest first. The sequence can be ranged over
// any number of times; it filters lazily over a snapshot taken at call time.
func (a *Archive[T]) List(ctx context.Context, userID string, f Filter) (iter.Seq[T], error) {
	entries, err := a.All(ctx, userID)
	if err != nil {
		return nil, err
	}
	// Reverse first so that equal timestamps keep newest-appended first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return a.stamp(entries[i]).After(a.stamp(entries[j]))
	})
	return func(yield func(T) bool) {
		for _, e := range entries {
			if a.match != nil && !a.match(e, f) {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}, nil
}

// Replace overwrites the archive, keeping at most the newest limit entries.
func (a *Archive[T]) Replace(ctx context.Context, userID string, entries []T) error {
	if len(entries) > a.limit {
		entries = entries[len(entries)-a.limit:]
	}
	if entries == nil {
		entries = []T{}
	}
	return putJSON(ctx, a.repo, userID, a.key, entries)
}

// Size returns the encoded size of the archive in bytes.
func (a *Archive[T]) Size(ctx context.Context, userID string) (int, error) {
	raw, err := a.repo.Get(ctx, userID, a.key)
	if isNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return len(raw), nil
}

// LessonArchive is the archive of generated lessons.
type LessonArchive struct {
	*Archive[model.LessonEntry]
}

// Append assigns an ID when missing and stores the lesson.
func (a *LessonArchive) Append(ctx context.Context, userID string, entry model.LessonEntry) (model.LessonEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	return entry, a.Archive.Append(ctx, userID, entry)
}

// MarkLastCompleted marks the most recently appended lesson as completed with feedback.
// The boolean reports whether the lesson was not completed before. ErrNotFound is
// returned when the archive is empty.
func (a *LessonArchive) MarkLastCompleted(ctx context.Context, userID, feedback string) (model.LessonEntry, bool, error) {
	var (
		last    model.LessonEntry
		changed bool
	)
	err := a.repo.Update(ctx, userID, a.key, func(old []byte) ([]byte, error) {
		var entries []model.LessonEntry
		if !decodeJSON(old, &entries) || len(entries) == 0 {
			return nil, ErrNotFound
		}
		e := &entries[len(entries)-1]
		changed = !e.Completed
		e.Completed = true
		e.Feedback = feedback
		last = *e
		return json.Marshal(entries)
	})
	if err != nil {
		return model.LessonEntry{}, false, err
	}
	return last, changed, nil
}

// Last returns the most recently appended lesson.
func (a *LessonArchive) Last(ctx context.Context, userID string) (model.LessonEntry, error) {
	entries, err := a.All(ctx, userID)
	if err != nil {
		return model.LessonEntry{}, err
	}
	if len(entries) == 0 {
		return model.LessonEntry{}, ErrNotFound
	}
	return entries[len(entries)-1], nil
}

// HomeworkArchive is the archive of saved homework.
type HomeworkArchive struct {
	*Archive[model.HomeworkEntry]
}

// Append assigns an ID when missing and stores the homework.
func (a *HomeworkArchive) Append(ctx context.Context, userID string, entry model.HomeworkEntry) (model.HomeworkEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	return entry, a.Archive.Append(ctx, userID, entry)
}

func newLessonArchive(repo Repository) *LessonArchive {
	return &LessonArchive{&Archive[model.LessonEntry]{
		repo:  repo,
		key:   keyLessons,
		limit: ArchiveLimit,
		stamp: func(e model.LessonEntry) time.Time { return e.Timestamp },
		match: func(e model.LessonEntry, f Filter) bool { return f.match(e.StudentLevel, e.SkillFocus) },
	}}
}

func newHomeworkArchive(repo Repository) *HomeworkArchive {
	return &HomeworkArchive{&Archive[model.HomeworkEntry]{
		repo:  repo,
		key:   keyHomework,
		limit: ArchiveLimit,
		stamp: func(e model.HomeworkEntry) time.Time { return e.Timestamp },
		match: func(e model.HomeworkEntry, f Filter) bool { return f.match(e.StudentLevel, e.SkillFocus) },
	}}
}

func newBadgeArchive(repo Repository) *Archive[model.Badge] {
	return &Archive[model.Badge]{
		repo:  repo,
		key:   keyBadges,
		limit: ArchiveLimit,
		stamp: func(b model.Badge) time.Time { return b.AwardedAt },
		match: func(b model.Badge, f Filter) bool { return containsFold(string(b.Skill), f.Skill) },
	}
}
