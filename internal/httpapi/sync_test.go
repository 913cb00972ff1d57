package httpapi

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/verte-zerg/arcade/internal/arcade"
	"github.com/verte-zerg/arcade/internal/ledger"
	"github.com/verte-zerg/arcade/internal/model"
	"github.com/verte-zerg/arcade/internal/remotesync"
	"github.com/verte-zerg/arcade/internal/store"
)

type syncedServer struct {
	*Server
	session *arcade.Session
	ledger  *ledger.Ledger
}

func newSyncedServer(t *testing.T, remote remotesync.DocumentStore) syncedServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	l := ledger.New(store.NewMemory(), ledger.Options{})
	syncer := remotesync.New(l, remote, nil, remotesync.Options{})
	session := arcade.New(l, &stubAPI{remaining: 5}, syncer, nil, arcade.Options{})
	t.Cleanup(session.Close)
	return syncedServer{
		Server:  New(session, Config{Gates: ledger.DefaultGates()}, nil),
		session: session,
		ledger:  l,
	}
}

// pulled copies the remote document into a fresh ledger.
func pulled(t *testing.T, remote remotesync.DocumentStore, userID string) *ledger.Ledger {
	t.Helper()
	l := ledger.New(store.NewMemory(), ledger.Options{})
	if _, err := remotesync.New(l, remote, nil, remotesync.Options{}).Pull(context.Background(), userID); err != nil {
		t.Fatalf("pull into fresh ledger: %v", err)
	}
	return l
}

func TestCompletionsSurvivePull(t *testing.T) {
	remote := remotesync.NewMemoryStore()
	s := newSyncedServer(t, remote)
	do(t, s.Server, http.MethodPut, "/api/profile", "u1", map[string]any{"level": "B1", "age": 30, "reason": "travel"})
	for range 3 {
		rec := do(t, s.Server, http.MethodPost, "/api/course/completions", "u1", map[string]any{"skill": "Grammar"})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	}

	rec := do(t, s.Server, http.MethodPost, "/api/sync/pull", "u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	course := decode[model.Course](t, do(t, s.Server, http.MethodGet, "/api/course", "u1", nil))
	if got := course.Completed(model.SkillGrammar); got != 3 {
		t.Fatalf("expected 3 grammar completions after pull, got %d", got)
	}

	s.session.Close()
	remoteCourse, err := pulled(t, remote, "u1").Courses.Load(context.Background(), "u1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := remoteCourse.Completed(model.SkillGrammar); got != 3 {
		t.Fatalf("expected remote copy with 3 grammar completions, got %d", got)
	}
}

func TestCompleteLastIsPushed(t *testing.T) {
	remote := remotesync.NewMemoryStore()
	s := newSyncedServer(t, remote)
	do(t, s.Server, http.MethodPut, "/api/profile", "u1", map[string]any{"level": "B1", "age": 30, "reason": "travel"})
	if rec := do(t, s.Server, http.MethodPost, "/api/lessons", "u1", map[string]any{"skill": "Reading"}); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	rec := do(t, s.Server, http.MethodPost, "/api/lessons/complete-last", "u1", map[string]any{"feedback": "Nice"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	s.session.Close()
	lessons, err := pulled(t, remote, "u1").Lessons.All(context.Background(), "u1")
	if err != nil {
		t.Fatalf("lessons: %v", err)
	}
	if len(lessons) != 1 || !lessons[0].Completed || lessons[0].Feedback != "Nice" {
		t.Fatalf("expected completed lesson in remote copy, got %+v", lessons)
	}
}

func TestFirstCourseReadIsPushed(t *testing.T) {
	remote := remotesync.NewMemoryStore()
	s := newSyncedServer(t, remote)
	if rec := do(t, s.Server, http.MethodGet, "/api/course", "u1", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	s.session.Close()
	doc, ok, err := remote.Fetch(context.Background(), "u1")
	if err != nil || !ok {
		t.Fatalf("expected remote document: %v %v", ok, err)
	}
	if _, ok := doc[remotesync.FieldCourse]; !ok {
		t.Fatalf("expected stored course to be pushed")
	}
}

type downStore struct {
	*remotesync.MemoryStore
}

func (downStore) Merge(context.Context, string, map[string][]byte) error {
	return errors.New("remote down")
}

func TestSyncWarnings(t *testing.T) {
	s := newSyncedServer(t, downStore{remotesync.NewMemoryStore()})
	rec := do(t, s.Server, http.MethodPut, "/api/profile", "u1", map[string]any{"level": "B1", "age": 30, "reason": "travel"})
	if rec.Code != http.StatusOK {
		t.Fatalf("failed push must not fail setup, got %d", rec.Code)
	}
	s.session.Close()

	rec = do(t, s.Server, http.MethodGet, "/api/sync/warnings", "u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	warnings := decode[map[string][]syncWarning](t, rec)["warnings"]
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %+v", warnings)
	}
	if w := warnings[0]; w.UserID != "u1" || w.Op != "push" || w.Message != arcade.MsgPushFailed {
		t.Fatalf("unexpected warning: %+v", w)
	}

	rec = do(t, s.Server, http.MethodGet, "/api/sync/warnings", "u1", nil)
	if warnings := decode[map[string][]syncWarning](t, rec)["warnings"]; warnings == nil || len(warnings) != 0 {
		t.Fatalf("expected drained warnings, got %v", warnings)
	}
}

func TestSubmitKeepsFeedbackWhenSkillMissing(t *testing.T) {
	s := newSyncedServer(t, nil)
	ctx := context.Background()
	do(t, s.Server, http.MethodPut, "/api/profile", "u1", map[string]any{"level": "B1", "age": 30, "reason": "travel"})
	if rec := do(t, s.Server, http.MethodPost, "/api/lessons", "u1", map[string]any{"skill": "Grammar"}); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	// A course restored from an older remote copy without the Grammar track.
	partial := model.Course{Level: model.LevelB1, Skills: []model.SkillProgress{{Skill: model.SkillSpeaking, Required: 10}}}
	if err := s.ledger.Courses.Restore(ctx, "u1", partial); err != nil {
		t.Fatalf("restore: %v", err)
	}

	rec := do(t, s.Server, http.MethodPost, "/api/lessons/submit", "u1", map[string]any{"answer": "I have gone"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[gradedResponse](t, rec)
	if got.Feedback != "Well done" || !got.Lesson.Completed {
		t.Fatalf("expected feedback and completed lesson, got %+v", got)
	}
	if got.Warning != "Skill Grammar not found in course" {
		t.Fatalf("unexpected warning %q", got.Warning)
	}
}
