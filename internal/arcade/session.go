// Package arcade runs user actions against the ledger, the lesson API, and remote sync.
package arcade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/verte-zerg/arcade/internal/ledger"
	"github.com/verte-zerg/arcade/internal/lessonapi"
	"github.com/verte-zerg/arcade/internal/logger"
	"github.com/verte-zerg/arcade/internal/model"
	"github.com/verte-zerg/arcade/internal/remotesync"
)

// usedLessonWindow is how many recent lessons feed the repeat-avoidance lists.
const usedLessonWindow = 10

// Local activities completing a lesson without the API.
const (
	ActionFlashcards = "flashcards_completed"
	ActionAudio      = "audio_played"
)

// ErrInvalidActivity is returned for an action that does not fit the skill.
var ErrInvalidActivity = errors.New("invalid action or skill focus")

// CachedQuotaError wraps a timed out API call with the locally cached quota.
type CachedQuotaError struct {
	Remaining int
	Err       error
}

func (e *CachedQuotaError) Error() string {
	return fmt.Sprintf("%v (cached quota %d)", e.Err, e.Remaining)
}

func (e *CachedQuotaError) Unwrap() error { return e.Err }

// LessonAPI is the remote lesson service.
type LessonAPI interface {
	GenerateClass(ctx context.Context, req lessonapi.GenerateRequest) (lessonapi.GenerateResponse, error)
	SubmitAnswer(ctx context.Context, req lessonapi.AnswerRequest) (lessonapi.AnswerResponse, error)
	RemainingCalls(ctx context.Context) (lessonapi.RemainingCalls, error)
}

// Options tunes a Session.
type Options struct {
	Now func() time.Time
}

// Session is the boundary between user actions and the stores.
type Session struct {
	ledger *ledger.Ledger
	api    LessonAPI
	sync   *remotesync.Syncer
	log    *logger.Logger
	now    func() time.Time
}

// New builds a Session. sync may be nil.
func New(l *ledger.Ledger, api LessonAPI, sync *remotesync.Syncer, log *logger.Logger, opts Options) *Session {
	if log == nil {
		log = logger.Nop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Session{ledger: l, api: api, sync: sync, log: log.With("service", "Session"), now: now}
}

// Ledger returns the local ledger.
func (s *Session) Ledger() *ledger.Ledger {
	return s.ledger
}

// LessonRequest selects what to generate.
type LessonRequest struct {
	Skill   string
	Teacher string
}

// GeneratedLesson is a freshly archived lesson with its extracted worksheet.
type GeneratedLesson struct {
	Entry     model.LessonEntry `json:"entry"`
	Plan      lessonapi.Plan    `json:"plan"`
	Remaining int               `json:"remaining"`
}

// GenerateLesson takes one quota call, asks the API for a class plan, and archives it.
func (s *Session) GenerateLesson(ctx context.Context, userID string, req LessonRequest) (GeneratedLesson, error) {
	if s.api == nil {
		return GeneratedLesson{}, errors.New("lesson api is not configured")
	}
	if err := s.ledger.CheckStorage(ctx, userID); err != nil {
		return GeneratedLesson{}, err
	}
	skill := model.SkillSpeaking
	if req.Skill != "" {
		parsed, ok := model.ParseSkill(req.Skill)
		if !ok {
			return GeneratedLesson{}, &ledger.UnknownSkillError{Skill: req.Skill}
		}
		skill = parsed
	}
	teacher, ok := ledger.ParseTeacher(req.Teacher)
	if !ok {
		return GeneratedLesson{}, fmt.Errorf("unknown teacher %q", req.Teacher)
	}
	profile, err := s.ledger.Profiles.Load(ctx, userID)
	if err != nil {
		return GeneratedLesson{}, err
	}
	module := 0
	if skill == model.SkillSpeaking {
		if module, err = s.ledger.Courses.NextSpeakingModule(ctx, userID); err != nil {
			return GeneratedLesson{}, err
		}
	}
	phrases, vocab, err := s.usedPhrases(ctx, userID)
	if err != nil {
		return GeneratedLesson{}, err
	}

	remaining, err := s.ledger.Profiles.ConsumeQuota(ctx, userID)
	if err != nil {
		return GeneratedLesson{}, err
	}
	resp, err := s.api.GenerateClass(ctx, lessonapi.GenerateRequest{
		StudentLevel: string(profile.Level),
		SkillFocus:   string(skill),
		Teacher:      teacher,
		Reason:       profile.Reason,
		Age:          profile.Age,
		ModuleLesson: module,
		UsedPhrases:  phrases,
		UsedVocab:    vocab,
	})
	if err != nil {
		return GeneratedLesson{}, s.apiFailure(ctx, userID, remaining, err, true)
	}
	if remaining, err = s.ledger.Profiles.SyncQuota(ctx, userID, resp.RemainingCalls.Generate); err != nil {
		return GeneratedLesson{}, err
	}

	plan := lessonapi.ParsePlan(resp.ClassPlan)
	badge := resp.Badge
	if badge == "" {
		badge = plan.Badge
	}
	if badge == "" {
		badge = ledger.DefaultBadge
	}
	entry, err := s.ledger.Lessons.Append(ctx, userID, model.LessonEntry{
		ClassPlan:    resp.ClassPlan,
		StudentLevel: profile.Level,
		SkillFocus:   skill,
		Teacher:      teacher,
		Reason:       profile.Reason,
		Age:          profile.Age,
		Timestamp:    s.now(),
		ModuleLesson: module,
		Badge:        badge,
	})
	if err != nil {
		return GeneratedLesson{}, err
	}
	s.log.Info("lesson generated", "user_id", userID, "skill", skill, "module_lesson", module, "remaining", remaining)
	s.sync.Push(ctx, userID)
	return GeneratedLesson{Entry: entry, Plan: plan, Remaining: remaining}, nil
}

// Graded is the outcome of completing the latest lesson.
type Graded struct {
	Feedback  string            `json:"feedback"`
	Lesson    model.LessonEntry `json:"lesson"`
	Course    model.Course      `json:"course"`
	Badge     *model.Badge      `json:"badge,omitempty"`
	Remaining int               `json:"remaining"`
}

// SubmitAnswer grades answer against the latest lesson and records the completion.
// An UnknownSkillError is returned together with the feedback.
func (s *Session) SubmitAnswer(ctx context.Context, userID, answer string) (Graded, error) {
	if s.api == nil {
		return Graded{}, errors.New("lesson api is not configured")
	}
	if err := s.ledger.CheckStorage(ctx, userID); err != nil {
		return Graded{}, err
	}
	last, err := s.ledger.Lessons.Last(ctx, userID)
	if err != nil {
		return Graded{}, err
	}
	cached, err := s.ledger.Profiles.Remaining(ctx, userID)
	if err != nil {
		return Graded{}, err
	}
	resp, err := s.api.SubmitAnswer(ctx, lessonapi.AnswerRequest{
		Answer:       answer,
		ClassPlan:    last.ClassPlan,
		StudentLevel: string(last.StudentLevel),
		SkillFocus:   string(last.SkillFocus),
		Reason:       last.Reason,
	})
	if err != nil {
		return Graded{}, s.apiFailure(ctx, userID, cached, err, false)
	}
	remaining, err := s.ledger.Profiles.SyncQuota(ctx, userID, resp.RemainingCalls.Generate)
	if err != nil {
		return Graded{}, err
	}
	graded, err := s.complete(ctx, userID, resp.Feedback)
	graded.Remaining = remaining
	return graded, err
}

var activities = map[string]struct {
	skill    model.Skill
	feedback string
}{
	ActionFlashcards: {model.SkillVocabulary, "All vocabulary flashcards completed! Great job! 🎉"},
	ActionAudio:      {model.SkillSpeaking, "Audio prompt played successfully! Practice speaking! 🎙️"},
}

// CompleteActivity completes the latest lesson through a local activity, without the API.
func (s *Session) CompleteActivity(ctx context.Context, userID, action, skill string) (Graded, error) {
	act, ok := activities[action]
	parsed, skillOK := model.ParseSkill(skill)
	if !ok || !skillOK || parsed != act.skill {
		return Graded{}, ErrInvalidActivity
	}
	if err := s.ledger.CheckStorage(ctx, userID); err != nil {
		return Graded{}, err
	}
	graded, err := s.complete(ctx, userID, act.feedback)
	if remaining, qerr := s.ledger.Profiles.Remaining(ctx, userID); qerr == nil {
		graded.Remaining = remaining
	}
	return graded, err
}

func (s *Session) complete(ctx context.Context, userID, feedback string) (Graded, error) {
	entry, changed, err := s.ledger.Lessons.MarkLastCompleted(ctx, userID, feedback)
	if err != nil {
		return Graded{Feedback: feedback}, err
	}
	graded := Graded{Feedback: feedback, Lesson: entry}
	defer s.sync.Push(ctx, userID)

	course, err := s.ledger.Courses.RecordCompletion(ctx, userID, entry.SkillFocus, entry.ModuleLesson)
	if err != nil {
		s.log.Warn("completion not recorded", "user_id", userID, "skill", entry.SkillFocus, "error", err)
		return graded, err
	}
	graded.Course = course
	if changed {
		badge, err := s.award(ctx, userID, entry.Badge, entry.SkillFocus)
		if err != nil {
			return graded, err
		}
		graded.Badge = badge
	}
	return graded, nil
}

// HomeworkInput is the worksheet state saved with the notes.
type HomeworkInput struct {
	Notes     string                       `json:"notes"`
	DragDrop  model.DragDropSelections     `json:"drag_items"`
	Exercises map[int]model.ExerciseAnswer `json:"exercises"`
}

// SavedHomework is the outcome of SaveHomework.
type SavedHomework struct {
	Entry  model.HomeworkEntry `json:"entry"`
	Course model.Course        `json:"course"`
	Badge  *model.Badge        `json:"badge,omitempty"`
}

// SaveHomework archives notes against the latest lesson, counts the lesson for its
// skill, and awards the lesson badge.
func (s *Session) SaveHomework(ctx context.Context, userID string, in HomeworkInput) (SavedHomework, error) {
	if err := s.ledger.CheckStorage(ctx, userID); err != nil {
		return SavedHomework{}, err
	}
	last, err := s.ledger.Lessons.Last(ctx, userID)
	if err != nil {
		return SavedHomework{}, err
	}
	exercises := in.Exercises
	if exercises == nil {
		exercises = map[int]model.ExerciseAnswer{}
	}
	entry, err := s.ledger.Homework.Append(ctx, userID, model.HomeworkEntry{
		LessonText:      last.ClassPlan,
		Notes:           in.Notes,
		Timestamp:       s.now(),
		StudentLevel:    last.StudentLevel,
		SkillFocus:      last.SkillFocus,
		Teacher:         last.Teacher,
		Reason:          last.Reason,
		Age:             last.Age,
		ModuleLesson:    last.ModuleLesson,
		Feedback:        last.Feedback,
		DragDrop:        in.DragDrop,
		ExerciseAnswers: exercises,
	})
	if err != nil {
		return SavedHomework{}, err
	}
	defer s.sync.Push(ctx, userID)
	out := SavedHomework{Entry: entry}

	badge, err := s.award(ctx, userID, last.Badge, last.SkillFocus)
	if err != nil {
		return out, err
	}
	out.Badge = badge
	course, err := s.ledger.Courses.RecordCompletion(ctx, userID, last.SkillFocus, last.ModuleLesson)
	if err != nil {
		s.log.Warn("completion not recorded", "user_id", userID, "skill", last.SkillFocus, "error", err)
		return out, err
	}
	out.Course = course
	return out, nil
}

// RefreshQuota asks the API for the remaining calls. On timeout the cached count is kept.
func (s *Session) RefreshQuota(ctx context.Context, userID string) (int, error) {
	cached, err := s.ledger.Profiles.Remaining(ctx, userID)
	if err != nil {
		return 0, err
	}
	if s.api == nil {
		return cached, nil
	}
	rc, err := s.api.RemainingCalls(ctx)
	if err != nil {
		if lessonapi.IsKind(err, lessonapi.KindTimeout) {
			return cached, &CachedQuotaError{Remaining: cached, Err: err}
		}
		return cached, err
	}
	return s.ledger.Profiles.SyncQuota(ctx, userID, rc.Generate)
}

// Pull replaces local state with the remote copy when one exists.
func (s *Session) Pull(ctx context.Context, userID string) (bool, error) {
	return s.sync.Pull(ctx, userID)
}

// PushAsync starts a background push of local state. Failures end up in SyncWarnings.
func (s *Session) PushAsync(ctx context.Context, userID string) {
	s.sync.Push(ctx, userID)
}

// SyncWarnings returns the background pushes that failed since the last call.
func (s *Session) SyncWarnings() []error {
	return s.sync.DrainWarnings()
}

// Push writes local state to the remote store and waits for the result.
func (s *Session) Push(ctx context.Context, userID string) error {
	return s.sync.PushNow(ctx, userID)
}

// Start pulls remote state while the server quota is fetched, as on app start.
// The server quota is applied after the pull so a restored profile cannot
// overwrite it. Both failures are informational.
func (s *Session) Start(ctx context.Context, userID string) []error {
	var (
		g               errgroup.Group
		pullErr, apiErr error
		rc              lessonapi.RemainingCalls
	)
	g.Go(func() error {
		_, pullErr = s.Pull(ctx, userID)
		return nil
	})
	if s.api != nil {
		g.Go(func() error {
			rc, apiErr = s.api.RemainingCalls(ctx)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	if pullErr != nil {
		errs = append(errs, pullErr)
	}
	switch {
	case s.api == nil:
	case apiErr != nil:
		cached, err := s.ledger.Profiles.Remaining(ctx, userID)
		if err != nil {
			errs = append(errs, err)
			break
		}
		if lessonapi.IsKind(apiErr, lessonapi.KindTimeout) {
			apiErr = &CachedQuotaError{Remaining: cached, Err: apiErr}
		}
		errs = append(errs, apiErr)
	default:
		if _, err := s.ledger.Profiles.SyncQuota(ctx, userID, rc.Generate); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Close waits for background pushes.
func (s *Session) Close() {
	s.sync.Wait()
}

// apiFailure updates the cached quota after a failed call. With refund set, the
// optimistic local decrement is undone when the server never saw the call.
func (s *Session) apiFailure(ctx context.Context, userID string, remaining int, err error, refund bool) error {
	switch {
	case lessonapi.IsKind(err, lessonapi.KindQuotaExhausted):
		if _, serr := s.ledger.Profiles.SyncQuota(ctx, userID, 0); serr != nil {
			s.log.Warn("quota not updated", "user_id", userID, "error", serr)
		}
		return err
	case lessonapi.IsKind(err, lessonapi.KindTimeout):
		return &CachedQuotaError{Remaining: remaining, Err: err}
	case refund && neverCounted(err):
		if _, serr := s.ledger.Profiles.SyncQuota(ctx, userID, remaining+1); serr != nil {
			s.log.Warn("quota not refunded", "user_id", userID, "error", serr)
		}
	}
	return err
}

// neverCounted reports failures the server cannot have counted against the quota.
func neverCounted(err error) bool {
	return lessonapi.IsKind(err, lessonapi.KindUnauthorized) ||
		lessonapi.IsKind(err, lessonapi.KindEndpointMissing) ||
		lessonapi.IsKind(err, lessonapi.KindCORS) ||
		lessonapi.IsKind(err, lessonapi.KindNetwork)
}

func (s *Session) award(ctx context.Context, userID, name string, skill model.Skill) (*model.Badge, error) {
	if name == "" {
		name = ledger.DefaultBadge
	}
	badges, err := s.ledger.Badges.All(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, b := range badges {
		if b.Name == name {
			return nil, nil
		}
	}
	badge := model.Badge{Name: name, Skill: skill, AwardedAt: s.now()}
	if err := s.ledger.Badges.Append(ctx, userID, badge); err != nil {
		return nil, err
	}
	return &badge, nil
}

func (s *Session) usedPhrases(ctx context.Context, userID string) ([]string, []string, error) {
	lessons, err := s.ledger.Lessons.All(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if len(lessons) > usedLessonWindow {
		lessons = lessons[len(lessons)-usedLessonWindow:]
	}
	plans := make([]string, 0, len(lessons))
	for _, l := range lessons {
		plans = append(plans, l.ClassPlan)
	}
	phrases, vocab := lessonapi.UsedPhrases(plans)
	return phrases, vocab, nil
}
