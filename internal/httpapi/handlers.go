package httpapi

import (
	"errors"
	"fmt"
	"iter"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/verte-zerg/arcade/internal/arcade"
	"github.com/verte-zerg/arcade/internal/ledger"
	"github.com/verte-zerg/arcade/internal/model"
	"github.com/verte-zerg/arcade/internal/progress"
	"github.com/verte-zerg/arcade/internal/remotesync"
)

// GET /api/profile
func (s *Server) getProfile(c *gin.Context) {
	profile, err := s.ledger.Profiles.Load(c.Request.Context(), userID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, profile)
}

type setupRequest struct {
	Level  string `json:"level"`
	Age    any    `json:"age"`
	Reason string `json:"reason"`
}

// PUT /api/profile
// Age may be sent as a number or a string.
func (s *Server) putProfile(c *gin.Context) {
	var req setupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}
	age := ""
	if req.Age != nil {
		age = fmt.Sprint(req.Age)
	}
	profile, err := s.ledger.Profiles.SaveSetup(c.Request.Context(), userID(c), ledger.SetupInput{
		Level:  req.Level,
		Age:    age,
		Reason: req.Reason,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.session.PushAsync(c.Request.Context(), userID(c))
	respondOK(c, profile)
}

type quotaResponse struct {
	Remaining int `json:"remaining"`
}

// GET /api/quota
func (s *Server) getQuota(c *gin.Context) {
	remaining, err := s.ledger.Profiles.Remaining(c.Request.Context(), userID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, quotaResponse{Remaining: remaining})
}

// POST /api/quota/consume
func (s *Server) consumeQuota(c *gin.Context) {
	remaining, err := s.ledger.Profiles.ConsumeQuota(c.Request.Context(), userID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.session.PushAsync(c.Request.Context(), userID(c))
	respondOK(c, quotaResponse{Remaining: remaining})
}

// GET /api/course
// The first read stores the default course, which is then pushed like any write.
func (s *Server) getCourse(c *gin.Context) {
	ctx := c.Request.Context()
	existed, err := s.ledger.Courses.Exists(ctx, userID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	course, err := s.ledger.Courses.GetOrInit(ctx, userID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if !existed {
		s.session.PushAsync(ctx, userID(c))
	}
	respondOK(c, course)
}

type completionRequest struct {
	Skill        string `json:"skill" binding:"required"`
	ModuleLesson int    `json:"module_lesson"`
}

// POST /api/course/completions
func (s *Server) recordCompletion(c *gin.Context) {
	var req completionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}
	skill, ok := model.ParseSkill(req.Skill)
	if !ok {
		s.respondError(c, &ledger.UnknownSkillError{Skill: req.Skill})
		return
	}
	course, err := s.ledger.Courses.RecordCompletion(c.Request.Context(), userID(c), skill, req.ModuleLesson)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.session.PushAsync(c.Request.Context(), userID(c))
	respondOK(c, course)
}

type nextModuleResponse struct {
	ModuleLesson int    `json:"module_lesson"`
	Topic        string `json:"topic"`
}

// GET /api/course/next-module
func (s *Server) nextModule(c *gin.Context) {
	ctx := c.Request.Context()
	next, err := s.ledger.Courses.NextSpeakingModule(ctx, userID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	profile, err := s.ledger.Profiles.Load(ctx, userID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, nextModuleResponse{
		ModuleLesson: next,
		Topic:        ledger.SpeakingTopic(profile.ReasonBucket(), next),
	})
}

type roomResponse struct {
	Room   string     `json:"room"`
	Mode   model.Mode `json:"mode"`
	Open   bool       `json:"open"`
	Reason string     `json:"reason,omitempty"`
}

// GET /api/rooms/:room?mode=arcade|course
func (s *Server) getRoom(c *gin.Context) {
	room := c.Param("room")
	if !slices.Contains(model.Rooms, room) {
		c.JSON(http.StatusNotFound, ErrorEnvelope{Error: APIError{Message: "unknown room " + room, Code: "unknown_room"}})
		return
	}
	mode := s.cfg.Mode
	switch q := model.Mode(c.Query("mode")); q {
	case "":
	case model.ModeArcade, model.ModeCourse:
		mode = q
	default:
		respondBadRequest(c, "mode must be arcade or course")
		return
	}
	course, err := s.ledger.Courses.Load(c.Request.Context(), userID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, roomResponse{
		Room:   room,
		Mode:   mode,
		Open:   ledger.CanAccessRoom(course, mode, room, s.cfg.Gates),
		Reason: ledger.LockReason(course, mode, room, s.cfg.Gates),
	})
}

func collect[T any](seq iter.Seq[T]) []T {
	out := slices.Collect(seq)
	if out == nil {
		return []T{}
	}
	return out
}

func archiveFilter(c *gin.Context) ledger.Filter {
	return ledger.Filter{Level: c.Query("level"), Skill: c.Query("skill")}
}

// GET /api/lessons?level=&skill=
func (s *Server) listLessons(c *gin.Context) {
	seq, err := s.ledger.Lessons.List(c.Request.Context(), userID(c), archiveFilter(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, gin.H{"lessons": collect(seq)})
}

type generateRequest struct {
	Skill   string `json:"skill"`
	Teacher string `json:"teacher"`
}

// POST /api/lessons
func (s *Server) generateLesson(c *gin.Context) {
	var req generateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, err.Error())
			return
		}
	}
	lesson, err := s.session.GenerateLesson(c.Request.Context(), userID(c), arcade.LessonRequest{
		Skill:   req.Skill,
		Teacher: req.Teacher,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, lesson)
}

type completeLastRequest struct {
	Feedback string `json:"feedback"`
}

type completeLastResponse struct {
	Lesson  model.LessonEntry `json:"lesson"`
	Changed bool              `json:"changed"`
}

// POST /api/lessons/complete-last
// Marks the newest lesson completed without touching the course counters.
func (s *Server) completeLast(c *gin.Context) {
	var req completeLastRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, err.Error())
			return
		}
	}
	entry, changed, err := s.ledger.Lessons.MarkLastCompleted(c.Request.Context(), userID(c), req.Feedback)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if changed {
		s.session.PushAsync(c.Request.Context(), userID(c))
	}
	respondOK(c, completeLastResponse{Lesson: entry, Changed: changed})
}

type submitRequest struct {
	Answer string `json:"answer" binding:"required"`
}

// POST /api/lessons/submit
func (s *Server) submitAnswer(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}
	graded, err := s.session.SubmitAnswer(c.Request.Context(), userID(c), req.Answer)
	s.respondGraded(c, graded, err)
}

type activityRequest struct {
	Action string `json:"action" binding:"required"`
	Skill  string `json:"skill" binding:"required"`
}

// POST /api/lessons/activity
func (s *Server) completeActivity(c *gin.Context) {
	var req activityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}
	graded, err := s.session.CompleteActivity(c.Request.Context(), userID(c), req.Action, req.Skill)
	s.respondGraded(c, graded, err)
}

type gradedResponse struct {
	arcade.Graded
	Warning string `json:"warning,omitempty"`
}

// respondGraded keeps the feedback when the lesson skill is missing from the
// course: the lesson is already marked completed, so that is only a warning.
func (s *Server) respondGraded(c *gin.Context, graded arcade.Graded, err error) {
	var skillErr *ledger.UnknownSkillError
	switch {
	case err == nil:
		respondOK(c, gradedResponse{Graded: graded})
	case errors.As(err, &skillErr):
		s.log.Warn("completion not recorded", "user_id", userID(c), "skill", skillErr.Skill)
		respondOK(c, gradedResponse{Graded: graded, Warning: arcade.UserMessage(err)})
	default:
		s.respondError(c, err)
	}
}

// GET /api/homework?level=&skill=
func (s *Server) listHomework(c *gin.Context) {
	seq, err := s.ledger.Homework.List(c.Request.Context(), userID(c), archiveFilter(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, gin.H{"homework": collect(seq)})
}

// POST /api/homework
func (s *Server) saveHomework(c *gin.Context) {
	var req arcade.HomeworkInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}
	saved, err := s.session.SaveHomework(c.Request.Context(), userID(c), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

// GET /api/badges
func (s *Server) listBadges(c *gin.Context) {
	seq, err := s.ledger.Badges.List(c.Request.Context(), userID(c), ledger.Filter{})
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, gin.H{"badges": collect(seq)})
}

// GET /api/progress
func (s *Server) getProgress(c *gin.Context) {
	report, err := progress.BuildReport(c.Request.Context(), s.ledger, userID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, report)
}

// POST /api/sync/pull
func (s *Server) pull(c *gin.Context) {
	replaced, err := s.session.Pull(c.Request.Context(), userID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, gin.H{"replaced": replaced})
}

type syncWarning struct {
	UserID  string `json:"user_id,omitempty"`
	Op      string `json:"op"`
	Message string `json:"message"`
}

// GET /api/sync/warnings
// Drains the background pushes that failed since the last call, for every user.
func (s *Server) syncWarnings(c *gin.Context) {
	out := []syncWarning{}
	for _, err := range s.session.SyncWarnings() {
		w := syncWarning{Op: "push", Message: arcade.UserMessage(err)}
		var syncErr *remotesync.SyncError
		if errors.As(err, &syncErr) {
			w.UserID = syncErr.UserID
			w.Op = syncErr.Op
		}
		out = append(out, w)
	}
	respondOK(c, gin.H{"warnings": out})
}

// POST /api/sync/push
func (s *Server) push(c *gin.Context) {
	if err := s.session.Push(c.Request.Context(), userID(c)); err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, gin.H{"pushed": true})
}
