package ledger

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"testing"
	"time"

	"github.com/verte-zerg/arcade/internal/model"
)

func TestArchiveEvictsOldest(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < ArchiveLimit+3; i++ {
		entry := model.LessonEntry{
			ClassPlan: fmt.Sprintf("plan %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
		if _, err := l.Lessons.Append(ctx, "u1", entry); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		all, err := l.Lessons.All(ctx, "u1")
		if err != nil {
			t.Fatalf("all: %v", err)
		}
		if len(all) > ArchiveLimit {
			t.Fatalf("archive grew to %d entries", len(all))
		}
	}
	all, err := l.Lessons.All(ctx, "u1")
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != ArchiveLimit {
		t.Fatalf("expected %d entries, got %d", ArchiveLimit, len(all))
	}
	if all[0].ClassPlan != "plan 3" {
		t.Fatalf("expected oldest kept entry to be plan 3, got %q", all[0].ClassPlan)
	}
	if all[len(all)-1].ClassPlan != fmt.Sprintf("plan %d", ArchiveLimit+2) {
		t.Fatalf("unexpected newest entry: %q", all[len(all)-1].ClassPlan)
	}
}

func TestMarkLastCompleted(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	if _, _, err := l.Lessons.MarkLastCompleted(ctx, "u1", "nice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	for _, plan := range []string{"first", "second"} {
		if _, err := l.Lessons.Append(ctx, "u1", model.LessonEntry{ClassPlan: plan}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	entry, changed, err := l.Lessons.MarkLastCompleted(ctx, "u1", "well done")
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	if !changed || !entry.Completed || entry.Feedback != "well done" || entry.ClassPlan != "second" {
		t.Fatalf("unexpected entry: %+v changed=%v", entry, changed)
	}
	_, changed, err = l.Lessons.MarkLastCompleted(ctx, "u1", "again")
	if err != nil {
		t.Fatalf("mark again: %v", err)
	}
	if changed {
		t.Fatalf("completed must transition only once")
	}
	all, err := l.Lessons.All(ctx, "u1")
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if all[0].Completed {
		t.Fatalf("only the last lesson may be marked")
	}
	if !all[1].Completed {
		t.Fatalf("last lesson must stay completed")
	}
}

func TestListNewestFirstWithFilter(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := []model.HomeworkEntry{
		{Notes: "a", StudentLevel: model.LevelA1, SkillFocus: model.SkillGrammar, Timestamp: base},
		{Notes: "b", StudentLevel: model.LevelB1, SkillFocus: model.SkillSpeaking, Timestamp: base.Add(2 * time.Hour)},
		{Notes: "c", StudentLevel: model.LevelB2, SkillFocus: model.SkillGrammar, Timestamp: base.Add(time.Hour)},
		{Notes: "d", StudentLevel: model.LevelB1, SkillFocus: model.SkillGrammar, Timestamp: base.Add(time.Hour)},
	}
	for _, e := range entries {
		if _, err := l.Homework.Append(ctx, "u1", e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	seq, err := l.Homework.List(ctx, "u1", Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := notes(seq); got != "bdca" {
		t.Fatalf("expected bdca, got %s", got)
	}
	// Restartable.
	if got := notes(seq); got != "bdca" {
		t.Fatalf("second pass: expected bdca, got %s", got)
	}

	seq, err = l.Homework.List(ctx, "u1", Filter{Level: "b", Skill: "GRAM"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := notes(seq); got != "dc" {
		t.Fatalf("expected dc, got %s", got)
	}

	for e := range seq {
		if e.Notes != "d" {
			t.Fatalf("expected d first, got %s", e.Notes)
		}
		break
	}
}

func TestListEmptyArchive(t *testing.T) {
	l, _ := newTestLedger(t)
	seq, err := l.Lessons.List(context.Background(), "u1", Filter{Skill: "speaking"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := countLessons(seq); got != 0 {
		t.Fatalf("expected no entries, got %d", got)
	}
}

func TestReplaceKeepsNewest(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	badges := make([]model.Badge, ArchiveLimit+5)
	for i := range badges {
		badges[i] = model.Badge{Name: fmt.Sprintf("b%d", i)}
	}
	if err := l.Badges.Replace(ctx, "u1", badges); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, err := l.Badges.All(ctx, "u1")
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(got) != ArchiveLimit || got[0].Name != "b5" {
		t.Fatalf("unexpected badges: len=%d first=%q", len(got), got[0].Name)
	}
}

func notes(seq iter.Seq[model.HomeworkEntry]) string {
	var out string
	for e := range seq {
		out += e.Notes
	}
	return out
}

func countLessons(seq iter.Seq[model.LessonEntry]) int {
	n := 0
	for range seq {
		n++
	}
	return n
}
