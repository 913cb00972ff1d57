// Package model defines shared data structures.
package model

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Level is a CEFR proficiency level.
type Level string

// Recognized levels.
const (
	LevelA1 Level = "A1"
	LevelA2 Level = "A2"
	LevelB1 Level = "B1"
	LevelB2 Level = "B2"
	LevelC1 Level = "C1"
	LevelC2 Level = "C2"
)

// Levels lists every recognized level in ascending order.
var Levels = []Level{LevelA1, LevelA2, LevelB1, LevelB2, LevelC1, LevelC2}

// Valid reports whether l is one of the recognized levels.
func (l Level) Valid() bool {
	for _, lv := range Levels {
		if l == lv {
			return true
		}
	}
	return false
}

// Skill is one of the six curriculum tracks.
type Skill string

// Recognized skills.
const (
	SkillSpeaking   Skill = "Speaking"
	SkillListening  Skill = "Listening"
	SkillGrammar    Skill = "Grammar"
	SkillVocabulary Skill = "Vocabulary"
	SkillReading    Skill = "Reading"
	SkillWriting    Skill = "Writing"
)

// Skills lists the six skills in course order.
var Skills = []Skill{SkillSpeaking, SkillListening, SkillGrammar, SkillVocabulary, SkillReading, SkillWriting}

// ParseSkill matches name against the recognized skills, ignoring case and surrounding space.
func ParseSkill(name string) (Skill, bool) {
	name = strings.TrimSpace(name)
	for _, s := range Skills {
		if strings.EqualFold(string(s), name) {
			return s, true
		}
	}
	return "", false
}

// ReasonBucket classifies a free-text learning reason.
type ReasonBucket string

// Reason buckets.
const (
	ReasonBusiness ReasonBucket = "business"
	ReasonTravel   ReasonBucket = "travel"
	ReasonPersonal ReasonBucket = "personal"
)

// ClassifyReason buckets a reason by case-insensitive substring match.
// "business" wins over "travel" when both appear.
func ClassifyReason(reason string) ReasonBucket {
	r := strings.ToLower(reason)
	switch {
	case strings.Contains(r, "business"):
		return ReasonBusiness
	case strings.Contains(r, "travel"):
		return ReasonTravel
	default:
		return ReasonPersonal
	}
}

// Profile is the static setup of a user plus the cached daily quota.
type Profile struct {
	UserID        string `json:"user_id"`
	Level         Level  `json:"level"`
	Age           int    `json:"age"`
	Reason        string `json:"reason"`
	DailyQuota    int    `json:"daily_quota"`
	LastResetDate string `json:"last_reset_date,omitempty"`
}

// ReasonBucket returns the classified reason of the profile.
func (p Profile) ReasonBucket() ReasonBucket {
	return ClassifyReason(p.Reason)
}

// ModuleLessonRecord marks a completed Speaking module lesson.
type ModuleLessonRecord struct {
	ModuleIndex int  `json:"module_lesson"`
	Completed   bool `json:"completed"`
}

// SkillProgress tracks completions of a single skill.
type SkillProgress struct {
	Skill     Skill                `json:"skill"`
	Completed int                  `json:"completed"`
	Required  int                  `json:"required"`
	Lessons   []ModuleLessonRecord `json:"lessons"`
	// LastModule is the most recently recorded module lesson, used to continue
	// the cycle once every module has been recorded.
	LastModule int `json:"last_module_lesson,omitempty"`
}

// Done reports whether the skill has reached its required count.
func (s SkillProgress) Done() bool {
	return s.Completed >= s.Required
}

// CompletedModules counts distinct completed module lessons.
func (s SkillProgress) CompletedModules() int {
	seen := map[int]struct{}{}
	for _, l := range s.Lessons {
		if l.Completed && l.ModuleIndex > 0 {
			seen[l.ModuleIndex] = struct{}{}
		}
	}
	return len(seen)
}

// HasModule reports whether the module index is already recorded.
func (s SkillProgress) HasModule(idx int) bool {
	for _, l := range s.Lessons {
		if l.ModuleIndex == idx {
			return true
		}
	}
	return false
}

// Course is the per-user course ledger record.
type Course struct {
	Level  Level           `json:"level"`
	Reason string          `json:"reason"`
	Age    int             `json:"age"`
	Skills []SkillProgress `json:"skills"`
}

// Skill returns the progress entry for s.
func (c *Course) Skill(s Skill) (*SkillProgress, bool) {
	for i := range c.Skills {
		if c.Skills[i].Skill == s {
			return &c.Skills[i], true
		}
	}
	return nil, false
}

// Completed returns the completion count of s, or 0 if the skill is absent.
func (c Course) Completed(s Skill) int {
	for _, sp := range c.Skills {
		if sp.Skill == s {
			return sp.Completed
		}
	}
	return 0
}

// LessonEntry is an archived generated lesson.
type LessonEntry struct {
	ID           string    `json:"id"`
	ClassPlan    string    `json:"class_plan"`
	StudentLevel Level     `json:"student_level"`
	SkillFocus   Skill     `json:"skill_focus"`
	Teacher      string    `json:"teacher"`
	Reason       string    `json:"reason"`
	Age          int       `json:"age"`
	Timestamp    time.Time `json:"timestamp"`
	Completed    bool      `json:"completed"`
	ModuleLesson int       `json:"module_lesson"`
	Feedback     string    `json:"feedback"`
	Badge        string    `json:"badge,omitempty"`
}

// DragDropSelections holds the quick-check drop zones.
type DragDropSelections struct {
	Starting []string `json:"starting"`
	Keeping  []string `json:"keeping"`
}

// ExerciseAnswer is either a single text answer or a list of answers.
type ExerciseAnswer struct {
	Text  string   `json:"text,omitempty"`
	Items []string `json:"items,omitempty"`
}

// MarshalJSON encodes a list answer as an array and anything else as a string.
func (a ExerciseAnswer) MarshalJSON() ([]byte, error) {
	if a.Items != nil {
		return json.Marshal(a.Items)
	}
	return json.Marshal(a.Text)
}

// UnmarshalJSON accepts either a string or an array of strings.
func (a *ExerciseAnswer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		a.Text = ""
		return json.Unmarshal(data, &a.Items)
	}
	a.Items = nil
	return json.Unmarshal(data, &a.Text)
}

// HomeworkEntry is archived saved homework.
type HomeworkEntry struct {
	ID              string                 `json:"id"`
	LessonText      string                 `json:"lesson"`
	Notes           string                 `json:"notes"`
	Timestamp       time.Time              `json:"timestamp"`
	StudentLevel    Level                  `json:"student_level"`
	SkillFocus      Skill                  `json:"skill_focus"`
	Teacher         string                 `json:"teacher,omitempty"`
	Reason          string                 `json:"reason"`
	Age             int                    `json:"age"`
	ModuleLesson    int                    `json:"module_lesson"`
	Feedback        string                 `json:"feedback"`
	DragDrop        DragDropSelections     `json:"drag_items"`
	ExerciseAnswers map[int]ExerciseAnswer `json:"exercises"`
}

// Badge is an earned lesson badge.
type Badge struct {
	Name      string    `json:"name"`
	Skill     Skill     `json:"skill"`
	AwardedAt time.Time `json:"awarded_at"`
}

// Mode selects how rooms are gated.
type Mode string

// Modes.
const (
	ModeArcade Mode = "arcade"
	ModeCourse Mode = "course"
)

// Room names.
const (
	RoomClassroom = "classroom1"
	RoomArcade    = "arcade"
	RoomLibrary   = "library"
	RoomMedia     = "media"
)

// Rooms lists the dashboard rooms.
var Rooms = []string{RoomClassroom, RoomArcade, RoomLibrary, RoomMedia}

// Snapshot is the full per-user state mirrored to the remote document store.
type Snapshot struct {
	Profile  *Profile        `json:"profile,omitempty"`
	Course   *Course         `json:"course,omitempty"`
	Lessons  []LessonEntry   `json:"lessons"`
	Homework []HomeworkEntry `json:"homework"`
	Badges   []Badge         `json:"badges"`
}
