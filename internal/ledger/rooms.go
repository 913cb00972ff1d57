package ledger

import (
	"fmt"

	"github.com/verte-zerg/arcade/internal/model"
)

// Gates is the course-mode unlock policy.
type Gates struct {
	// SpeakingModules is the number of distinct speaking module lessons needed
	// before any room other than the classroom opens.
	SpeakingModules int `json:"speaking_modules"`
	// ArcadeVocabulary unlocks the arcade early once Vocabulary reaches it.
	ArcadeVocabulary int `json:"arcade_vocabulary"`
	// LibraryGrammar unlocks the library early once Grammar reaches it.
	LibraryGrammar int `json:"library_grammar"`
}

// DefaultGates returns the stock unlock thresholds.
func DefaultGates() Gates {
	return Gates{SpeakingModules: 5, ArcadeVocabulary: 2, LibraryGrammar: 2}
}

// CanAccessRoom reports whether room is open. Outside course mode every room is open.
func CanAccessRoom(course model.Course, mode model.Mode, room string, gates Gates) bool {
	if mode != model.ModeCourse {
		return true
	}
	if room == model.RoomClassroom {
		return true
	}
	if speakingModules(course) < gates.SpeakingModules {
		return false
	}
	if room == model.RoomArcade && course.Completed(model.SkillVocabulary) >= gates.ArcadeVocabulary {
		return true
	}
	if room == model.RoomLibrary && course.Completed(model.SkillGrammar) >= gates.LibraryGrammar {
		return true
	}
	if len(course.Skills) == 0 {
		return false
	}
	for _, sp := range course.Skills {
		if !sp.Done() {
			return false
		}
	}
	return true
}

// LockReason explains what is missing to open room, or "" when it is open.
func LockReason(course model.Course, mode model.Mode, room string, gates Gates) string {
	if CanAccessRoom(course, mode, room, gates) {
		return ""
	}
	if done := speakingModules(course); done < gates.SpeakingModules {
		return fmt.Sprintf("Complete %d more %s Speaking lessons.",
			gates.SpeakingModules-done, model.ClassifyReason(course.Reason))
	}
	switch room {
	case model.RoomArcade:
		return fmt.Sprintf("Complete %d Vocabulary lessons to unlock the Game Room.", gates.ArcadeVocabulary)
	case model.RoomLibrary:
		return fmt.Sprintf("Complete %d Grammar lessons to unlock the Library.", gates.LibraryGrammar)
	}
	for _, sp := range course.Skills {
		if !sp.Done() {
			return fmt.Sprintf("Complete %d lesson(s) in %s.", sp.Required-sp.Completed, sp.Skill)
		}
	}
	return "Complete your course setup first."
}

func speakingModules(course model.Course) int {
	sp, ok := course.Skill(model.SkillSpeaking)
	if !ok {
		return 0
	}
	return sp.CompletedModules()
}
