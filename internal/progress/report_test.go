package progress

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/arcade/internal/ledger"
	"github.com/verte-zerg/arcade/internal/model"
	"github.com/verte-zerg/arcade/internal/store"
)

func TestBuildReport(t *testing.T) {
	dir := t.TempDir()
	st, err := store.OpenSQLite(filepath.Join(dir, "arcade.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	l := ledger.New(st, ledger.Options{})
	ctx := context.Background()

	if _, err := l.Profiles.SaveSetup(ctx, "u1", ledger.SetupInput{Level: "B2", Age: "40", Reason: "Business meetings"}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	start := time.Unix(0, 0)
	for i := 0; i < 7; i++ {
		skill := model.SkillSpeaking
		if i%2 == 1 {
			skill = model.SkillGrammar
		}
		entry := model.LessonEntry{SkillFocus: skill, Timestamp: start.Add(time.Duration(i) * time.Minute)}
		if _, err := l.Lessons.Append(ctx, "u1", entry); err != nil {
			t.Fatalf("append: %v", err)
		}
		if i == 6 {
			break
		}
		if _, _, err := l.Lessons.MarkLastCompleted(ctx, "u1", "ok"); err != nil {
			t.Fatalf("mark: %v", err)
		}
	}
	for idx := 1; idx <= 2; idx++ {
		if _, err := l.Courses.RecordCompletion(ctx, "u1", model.SkillSpeaking, idx); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := l.Badges.Append(ctx, "u1", model.Badge{Name: "Deal Maker"}); err != nil {
		t.Fatalf("badge: %v", err)
	}

	report, err := BuildReport(ctx, l, "u1")
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	if report.LessonsCompleted != 6 {
		t.Fatalf("expected 6 completed lessons, got %d", report.LessonsCompleted)
	}
	if report.OverallPercent != 60 || report.Level != 4 {
		t.Fatalf("unexpected overall: %v%% level %d", report.OverallPercent, report.Level)
	}
	if report.Bucket != model.ReasonBusiness {
		t.Fatalf("unexpected bucket: %s", report.Bucket)
	}
	speaking := report.Skills[0]
	if speaking.Skill != model.SkillSpeaking || speaking.Lessons != 3 || speaking.Percent != 60 || speaking.Completed != 2 {
		t.Fatalf("unexpected speaking row: %+v", speaking)
	}
	if !report.Modules[1].Completed || report.Modules[2].Completed || report.NextModule != 3 {
		t.Fatalf("unexpected modules: %+v next=%d", report.Modules, report.NextModule)
	}
	if report.Modules[3].Topic != "Negotiations" {
		t.Fatalf("unexpected topic: %q", report.Modules[3].Topic)
	}
	if len(report.Badges) != 1 || report.Badges[0] != "Deal Maker" {
		t.Fatalf("unexpected badges: %v", report.Badges)
	}

	var buf bytes.Buffer
	if err := Render(&buf, report, false); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Lessons completed: 6", "Level 4", "[x] 2. Quick Thinking in Meetings", "3. Professional Networking  <- next", "🏆 Deal Maker"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestReportCapsPercentages(t *testing.T) {
	lessons := make([]model.LessonEntry, 0, 12)
	for i := 0; i < 12; i++ {
		lessons = append(lessons, model.LessonEntry{SkillFocus: model.SkillWriting, Completed: true})
	}
	r := FromSnapshot(model.Snapshot{Lessons: lessons})
	if r.OverallPercent != 100 {
		t.Fatalf("expected 100%%, got %v", r.OverallPercent)
	}
	if r.Skills[5].Percent != 100 {
		t.Fatalf("expected writing capped at 100%%, got %v", r.Skills[5].Percent)
	}
	if r.NextModule != 1 {
		t.Fatalf("expected next module 1 without a course, got %d", r.NextModule)
	}
}

func TestLessonRows(t *testing.T) {
	l := ledger.New(store.NewMemory(), ledger.Options{})
	ctx := context.Background()
	if _, err := l.Lessons.Append(ctx, "u1", model.LessonEntry{
		StudentLevel: model.LevelA2,
		SkillFocus:   model.SkillSpeaking,
		ModuleLesson: 4,
		Teacher:      "Olivia",
		Feedback:     "Good\njob",
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	seq, err := l.Lessons.List(ctx, "u1", ledger.Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	rows := LessonRows(seq)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0]
	if row[3] != "4" || row[4] != "Olivia" || row[5] != "open" || row[6] != "Good job" {
		t.Fatalf("unexpected row: %q", row)
	}
}
