package arcade

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/arcade/internal/ledger"
	"github.com/verte-zerg/arcade/internal/lessonapi"
	"github.com/verte-zerg/arcade/internal/model"
	"github.com/verte-zerg/arcade/internal/remotesync"
	"github.com/verte-zerg/arcade/internal/store"
)

const plan = "## Quick Check\n- [ ] Let's begin\n\n## Vocabulary\n- fare: ticket price (The fare is low)\n\n## Badge\n🏅 **Fare Finder**\n"

type fakeAPI struct {
	generated []lessonapi.GenerateRequest
	answers   []lessonapi.AnswerRequest
	remaining int
	err       error
	badge     string
}

func (f *fakeAPI) GenerateClass(_ context.Context, req lessonapi.GenerateRequest) (lessonapi.GenerateResponse, error) {
	f.generated = append(f.generated, req)
	if f.err != nil {
		return lessonapi.GenerateResponse{}, f.err
	}
	f.remaining--
	return lessonapi.GenerateResponse{
		ClassPlan:      plan,
		Badge:          f.badge,
		RemainingCalls: lessonapi.RemainingCalls{Generate: f.remaining},
	}, nil
}

func (f *fakeAPI) SubmitAnswer(_ context.Context, req lessonapi.AnswerRequest) (lessonapi.AnswerResponse, error) {
	f.answers = append(f.answers, req)
	if f.err != nil {
		return lessonapi.AnswerResponse{}, f.err
	}
	return lessonapi.AnswerResponse{Feedback: "Great answer", RemainingCalls: lessonapi.RemainingCalls{Generate: f.remaining}}, nil
}

func (f *fakeAPI) RemainingCalls(context.Context) (lessonapi.RemainingCalls, error) {
	if f.err != nil {
		return lessonapi.RemainingCalls{}, f.err
	}
	return lessonapi.RemainingCalls{Generate: f.remaining}, nil
}

func newSession(t *testing.T, api *fakeAPI) (*Session, *remotesync.MemoryStore) {
	t.Helper()
	now := func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local) }
	l := ledger.New(store.NewMemory(), ledger.Options{Now: now})
	remote := remotesync.NewMemoryStore()
	syncer := remotesync.New(l, remote, nil, remotesync.Options{ReadBackoff: time.Millisecond})
	s := New(l, api, syncer, nil, Options{Now: now})
	t.Cleanup(s.Close)
	if _, err := l.Profiles.SaveSetup(context.Background(), "u1", ledger.SetupInput{Level: "B1", Age: "33", Reason: "travel to see family"}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	return s, remote
}

func TestGenerateLessonArchivesAndSyncs(t *testing.T) {
	api := &fakeAPI{remaining: 5}
	s, remote := newSession(t, api)
	ctx := context.Background()

	got, err := s.GenerateLesson(ctx, "u1", LessonRequest{Teacher: "noah"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got.Entry.ModuleLesson != 1 || got.Entry.SkillFocus != model.SkillSpeaking || got.Entry.Teacher != "Noah" {
		t.Fatalf("unexpected entry: %+v", got.Entry)
	}
	if got.Entry.Badge != "Fare Finder" {
		t.Fatalf("expected badge from plan, got %q", got.Entry.Badge)
	}
	if got.Remaining != 4 || len(got.Plan.Vocabulary) != 1 {
		t.Fatalf("unexpected result: %+v", got)
	}
	if req := api.generated[0]; req.StudentLevel != "B1" || req.Age != 33 || req.ModuleLesson != 1 {
		t.Fatalf("unexpected request: %+v", req)
	}

	if _, err := s.GenerateLesson(ctx, "u1", LessonRequest{Skill: "grammar"}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if req := api.generated[1]; req.ModuleLesson != 0 || len(req.UsedPhrases) != 1 || req.UsedVocab[0] != "fare" {
		t.Fatalf("expected used phrases from previous lesson: %+v", req)
	}

	s.Close()
	doc, ok, err := remote.Fetch(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("expected remote document: %v %v", ok, err)
	}
	if !strings.Contains(string(doc[remotesync.FieldLessons]), "Fare Finder") {
		t.Fatalf("lessons not pushed: %s", doc[remotesync.FieldLessons])
	}
}

func TestGenerateLessonQuotaExceeded(t *testing.T) {
	api := &fakeAPI{remaining: 5}
	s, _ := newSession(t, api)
	ctx := context.Background()
	if _, err := s.Ledger().Profiles.SyncQuota(ctx, "u1", 0); err != nil {
		t.Fatalf("sync quota: %v", err)
	}
	_, err := s.GenerateLesson(ctx, "u1", LessonRequest{})
	if !errors.Is(err, ledger.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if len(api.generated) != 0 {
		t.Fatalf("api must not be called without quota")
	}
	if UserMessage(err) != MsgQuotaExceeded {
		t.Fatalf("unexpected message: %q", UserMessage(err))
	}
}

func TestGenerateLessonServerQuotaExhausted(t *testing.T) {
	api := &fakeAPI{err: &lessonapi.APIError{Kind: lessonapi.KindQuotaExhausted, Status: 429}}
	s, _ := newSession(t, api)
	ctx := context.Background()
	_, err := s.GenerateLesson(ctx, "u1", LessonRequest{})
	if UserMessage(err) != MsgQuotaExceeded {
		t.Fatalf("unexpected message: %q", UserMessage(err))
	}
	if n, _ := s.Ledger().Profiles.Remaining(ctx, "u1"); n != 0 {
		t.Fatalf("expected cached quota 0, got %d", n)
	}
}

func TestGenerateLessonTimeoutKeepsCachedQuota(t *testing.T) {
	api := &fakeAPI{err: &lessonapi.APIError{Kind: lessonapi.KindTimeout}}
	s, _ := newSession(t, api)
	_, err := s.GenerateLesson(context.Background(), "u1", LessonRequest{})
	var cached *CachedQuotaError
	if !errors.As(err, &cached) || cached.Remaining != 4 {
		t.Fatalf("expected cached quota error, got %v", err)
	}
	if msg := UserMessage(err); msg != "Request timed out. Using cached credits: 4" {
		t.Fatalf("unexpected message: %q", msg)
	}
}

func TestGenerateLessonNetworkFailureRefundsQuota(t *testing.T) {
	api := &fakeAPI{err: &lessonapi.APIError{Kind: lessonapi.KindNetwork}}
	s, _ := newSession(t, api)
	ctx := context.Background()
	_, err := s.GenerateLesson(ctx, "u1", LessonRequest{})
	if UserMessage(err) != MsgNetwork {
		t.Fatalf("unexpected message: %q", UserMessage(err))
	}
	if n, _ := s.Ledger().Profiles.Remaining(ctx, "u1"); n != ledger.DailyQuota {
		t.Fatalf("expected refunded quota, got %d", n)
	}
	lessons, _ := s.Ledger().Lessons.All(ctx, "u1")
	if len(lessons) != 0 {
		t.Fatalf("failed generation must not archive a lesson")
	}
}

func TestSubmitAnswerCompletesLesson(t *testing.T) {
	api := &fakeAPI{remaining: 5}
	s, _ := newSession(t, api)
	ctx := context.Background()
	if _, err := s.GenerateLesson(ctx, "u1", LessonRequest{}); err != nil {
		t.Fatalf("generate: %v", err)
	}

	graded, err := s.SubmitAnswer(ctx, "u1", "my answer")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if graded.Feedback != "Great answer" || !graded.Lesson.Completed {
		t.Fatalf("unexpected result: %+v", graded)
	}
	sp, _ := graded.Course.Skill(model.SkillSpeaking)
	if sp.Completed != 1 || !sp.HasModule(1) {
		t.Fatalf("unexpected speaking progress: %+v", sp)
	}
	if graded.Badge == nil || graded.Badge.Name != "Fare Finder" {
		t.Fatalf("expected badge, got %+v", graded.Badge)
	}
	if api.answers[0].ClassPlan != plan || api.answers[0].Answer != "my answer" {
		t.Fatalf("unexpected answer request: %+v", api.answers[0])
	}

	graded, err = s.SubmitAnswer(ctx, "u1", "again")
	if err != nil {
		t.Fatalf("submit again: %v", err)
	}
	if graded.Badge != nil {
		t.Fatalf("badge must be awarded once")
	}
	if graded.Course.Completed(model.SkillSpeaking) != 2 {
		t.Fatalf("expected completed=2, got %d", graded.Course.Completed(model.SkillSpeaking))
	}
}

func TestSubmitAnswerWithoutLesson(t *testing.T) {
	s, _ := newSession(t, &fakeAPI{remaining: 5})
	_, err := s.SubmitAnswer(context.Background(), "u1", "x")
	if !errors.Is(err, ledger.ErrNotFound) || UserMessage(err) != MsgNoLesson {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCompleteActivity(t *testing.T) {
	api := &fakeAPI{remaining: 5}
	s, _ := newSession(t, api)
	ctx := context.Background()
	if _, err := s.GenerateLesson(ctx, "u1", LessonRequest{Skill: "Vocabulary"}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := s.CompleteActivity(ctx, "u1", ActionAudio, "Vocabulary"); !errors.Is(err, ErrInvalidActivity) {
		t.Fatalf("expected ErrInvalidActivity, got %v", err)
	}
	graded, err := s.CompleteActivity(ctx, "u1", ActionFlashcards, "vocabulary")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if graded.Course.Completed(model.SkillVocabulary) != 1 {
		t.Fatalf("unexpected course: %+v", graded.Course)
	}
	if len(api.answers) != 0 {
		t.Fatalf("local activity must not call the api")
	}
}

func TestSaveHomework(t *testing.T) {
	api := &fakeAPI{remaining: 5, badge: "Travel Talker"}
	s, _ := newSession(t, api)
	ctx := context.Background()
	if _, err := s.GenerateLesson(ctx, "u1", LessonRequest{}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	saved, err := s.SaveHomework(ctx, "u1", HomeworkInput{
		Notes:     "notes",
		DragDrop:  model.DragDropSelections{Starting: []string{"Let's begin"}},
		Exercises: map[int]model.ExerciseAnswer{0: {Text: "went"}, 1: {Items: []string{"a", "b"}}},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.Entry.LessonText != plan || saved.Entry.ModuleLesson != 1 || saved.Entry.ID == "" {
		t.Fatalf("unexpected homework: %+v", saved.Entry)
	}
	if saved.Badge == nil || saved.Badge.Name != "Travel Talker" {
		t.Fatalf("unexpected badge: %+v", saved.Badge)
	}
	if saved.Course.Completed(model.SkillSpeaking) != 1 {
		t.Fatalf("homework must count towards the skill")
	}
	homework, _ := s.Ledger().Homework.All(ctx, "u1")
	if len(homework) != 1 || homework[0].ExerciseAnswers[1].Items[1] != "b" {
		t.Fatalf("unexpected stored homework: %+v", homework)
	}
}

func TestRefreshQuota(t *testing.T) {
	api := &fakeAPI{remaining: 2}
	s, _ := newSession(t, api)
	ctx := context.Background()
	n, err := s.RefreshQuota(ctx, "u1")
	if err != nil || n != 2 {
		t.Fatalf("expected 2, got %d %v", n, err)
	}
	api.err = &lessonapi.APIError{Kind: lessonapi.KindTimeout}
	n, err = s.RefreshQuota(ctx, "u1")
	var cached *CachedQuotaError
	if !errors.As(err, &cached) || n != 2 {
		t.Fatalf("expected cached 2, got %d %v", n, err)
	}
}

func TestStartPullsRemoteState(t *testing.T) {
	api := &fakeAPI{remaining: 5}
	s, remote := newSession(t, api)
	ctx := context.Background()
	if _, err := s.GenerateLesson(ctx, "u1", LessonRequest{}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	s.Close()

	fresh := ledger.New(store.NewMemory(), ledger.Options{})
	other := New(fresh, api, remotesync.New(fresh, remote, nil, remotesync.Options{}), nil, Options{})
	if errs := other.Start(ctx, "u1"); len(errs) != 0 {
		t.Fatalf("start: %v", errs)
	}
	lessons, _ := fresh.Lessons.All(ctx, "u1")
	if len(lessons) != 1 {
		t.Fatalf("expected pulled lesson, got %d", len(lessons))
	}
}

func TestUserMessages(t *testing.T) {
	cases := map[string]error{
		MsgUnauthorized:                     &lessonapi.APIError{Kind: lessonapi.KindUnauthorized},
		MsgEndpointMissing:                  &lessonapi.APIError{Kind: lessonapi.KindEndpointMissing},
		MsgCORS:                             &lessonapi.APIError{Kind: lessonapi.KindCORS},
		MsgStorageFull:                      ledger.ErrStorageFull,
		MsgPullFailed:                       &remotesync.SyncError{Op: "pull", Err: errors.New("x")},
		MsgPushFailed:                       &remotesync.SyncError{Op: "push", Err: errors.New("x")},
		"Skill Cooking not found in course": &ledger.UnknownSkillError{Skill: "Cooking"},
	}
	for want, err := range cases {
		if got := UserMessage(err); got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
	verr := ledger.ValidateSetup(ledger.SetupInput{})
	if msg := UserMessage(verr); !strings.Contains(msg, "level") || !strings.Contains(msg, "age") || !strings.Contains(msg, "reason") {
		t.Fatalf("validation message must list every field: %q", msg)
	}
}
