package watch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/verte-zerg/arcade/internal/arcade"
	"github.com/verte-zerg/arcade/internal/ledger"
	"github.com/verte-zerg/arcade/internal/lessonapi"
	"github.com/verte-zerg/arcade/internal/model"
	"github.com/verte-zerg/arcade/internal/remotesync"
	"github.com/verte-zerg/arcade/internal/store"
)

type remainingAPI struct {
	remaining int
	err       error
}

func (r remainingAPI) GenerateClass(context.Context, lessonapi.GenerateRequest) (lessonapi.GenerateResponse, error) {
	return lessonapi.GenerateResponse{}, errors.New("not used")
}

func (r remainingAPI) SubmitAnswer(context.Context, lessonapi.AnswerRequest) (lessonapi.AnswerResponse, error) {
	return lessonapi.AnswerResponse{}, errors.New("not used")
}

func (r remainingAPI) RemainingCalls(context.Context) (lessonapi.RemainingCalls, error) {
	return lessonapi.RemainingCalls{Generate: r.remaining}, r.err
}

type fixture struct {
	local  *store.Memory
	ledger *ledger.Ledger
	remote *remotesync.MemoryStore
}

// newFixture seeds a remote copy for u1 made on another device.
func newFixture(t *testing.T, api arcade.LessonAPI) (*fixture, *arcade.Session) {
	t.Helper()
	ctx := context.Background()
	remote := remotesync.NewMemoryStore()

	other := ledger.New(store.NewMemory(), ledger.Options{})
	if _, err := other.Profiles.SaveSetup(ctx, "u1", ledger.SetupInput{Level: "C1", Age: "50", Reason: "business"}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := other.Lessons.Append(ctx, "u1", model.LessonEntry{SkillFocus: model.SkillReading}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := remotesync.New(other, remote, nil, remotesync.Options{}).PushNow(ctx, "u1"); err != nil {
		t.Fatalf("push: %v", err)
	}

	local := store.NewMemory()
	l := ledger.New(local, ledger.Options{})
	syncer := remotesync.New(l, remote, nil, remotesync.Options{ReadBackoff: time.Millisecond})
	return &fixture{local: local, ledger: l, remote: remote}, arcade.New(l, api, syncer, nil, arcade.Options{})
}

func TestPullAllReplacesLocalState(t *testing.T) {
	f, session := newFixture(t, nil)
	w := New(session, f.local, Config{Users: []string{"u1"}}, nil)
	if err := w.PullAll(context.Background()); err != nil {
		t.Fatalf("pull all: %v", err)
	}
	profile, err := f.ledger.Profiles.Load(context.Background(), "u1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if profile.Level != model.LevelC1 {
		t.Fatalf("expected remote profile, got %+v", profile)
	}
	lessons, err := f.ledger.Lessons.All(context.Background(), "u1")
	if err != nil || len(lessons) != 1 {
		t.Fatalf("expected remote lesson, got %v (%v)", lessons, err)
	}
}

func TestPullAllUsesLocalUsers(t *testing.T) {
	f, session := newFixture(t, nil)
	ctx := context.Background()
	if _, err := f.ledger.Profiles.SaveSetup(ctx, "u1", ledger.SetupInput{Level: "A1", Age: "9", Reason: "fun"}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	w := New(session, f.local, Config{}, nil)
	if err := w.PullAll(ctx); err != nil {
		t.Fatalf("pull all: %v", err)
	}
	profile, err := f.ledger.Profiles.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if profile.Level != model.LevelC1 {
		t.Fatalf("expected remote to win, got %+v", profile)
	}
}

func TestRefreshAll(t *testing.T) {
	f, session := newFixture(t, remainingAPI{remaining: 2})
	w := New(session, f.local, Config{Users: []string{"u1", "u2"}}, nil)
	if err := w.RefreshAll(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	for _, id := range []string{"u1", "u2"} {
		remaining, err := f.ledger.Profiles.Remaining(context.Background(), id)
		if err != nil {
			t.Fatalf("remaining: %v", err)
		}
		if remaining != 2 {
			t.Fatalf("expected 2 for %s, got %d", id, remaining)
		}
	}
}

func TestRefreshAllJoinsFailures(t *testing.T) {
	f, session := newFixture(t, remainingAPI{err: &lessonapi.APIError{Kind: lessonapi.KindServer, Status: 500}})
	w := New(session, f.local, Config{Users: []string{"u1", "u2"}}, nil)
	err := w.RefreshAll(context.Background())
	if !lessonapi.IsKind(err, lessonapi.KindServer) {
		t.Fatalf("expected server error, got %v", err)
	}
}

func TestStartRunsPullImmediately(t *testing.T) {
	f, session := newFixture(t, nil)
	w := New(session, f.local, Config{Users: []string{"u1"}, PullEvery: time.Hour}, nil)
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		profile, err := f.ledger.Profiles.Load(context.Background(), "u1")
		if err == nil && profile.Level == model.LevelC1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected the first pull to run on start")
}
