package ledger

import (
	"strings"
	"testing"

	"github.com/verte-zerg/arcade/internal/model"
)

func courseWith(completed map[model.Skill]int, modules ...int) model.Course {
	c := model.Course{Reason: "business travel"}
	for _, s := range model.Skills {
		sp := model.SkillProgress{Skill: s, Completed: completed[s], Required: 10}
		if s == model.SkillSpeaking {
			for _, m := range modules {
				sp.Lessons = append(sp.Lessons, model.ModuleLessonRecord{ModuleIndex: m, Completed: true})
			}
		}
		c.Skills = append(c.Skills, sp)
	}
	return c
}

func TestArcadeModeOpensEveryRoom(t *testing.T) {
	gates := DefaultGates()
	for _, course := range []model.Course{{}, courseWith(nil)} {
		for _, room := range model.Rooms {
			if !CanAccessRoom(course, model.ModeArcade, room, gates) {
				t.Fatalf("room %s must be open in arcade mode", room)
			}
			if reason := LockReason(course, model.ModeArcade, room, gates); reason != "" {
				t.Fatalf("unexpected lock reason %q", reason)
			}
		}
	}
}

func TestCourseModeGates(t *testing.T) {
	gates := DefaultGates()
	all := map[model.Skill]int{}
	for _, s := range model.Skills {
		all[s] = 10
	}
	cases := []struct {
		name   string
		course model.Course
		room   string
		want   bool
	}{
		{"classroom always", courseWith(nil), model.RoomClassroom, true},
		{"speaking gate", courseWith(map[model.Skill]int{model.SkillVocabulary: 5}, 1, 2, 3, 4), model.RoomArcade, false},
		{"arcade by vocabulary", courseWith(map[model.Skill]int{model.SkillVocabulary: 2}, 1, 2, 3, 4, 5), model.RoomArcade, true},
		{"arcade needs vocabulary", courseWith(map[model.Skill]int{model.SkillVocabulary: 1}, 1, 2, 3, 4, 5), model.RoomArcade, false},
		{"library by grammar", courseWith(map[model.Skill]int{model.SkillGrammar: 2}, 1, 2, 3, 4, 5), model.RoomLibrary, true},
		{"media needs every skill", courseWith(map[model.Skill]int{model.SkillGrammar: 10}, 1, 2, 3, 4, 5), model.RoomMedia, false},
		{"media with every skill", courseWith(all, 1, 2, 3, 4, 5), model.RoomMedia, true},
		{"arcade with every skill", courseWith(all, 1, 2, 3, 4, 5), model.RoomArcade, true},
		{"duplicate modules count once", courseWith(all, 1, 1, 2, 2, 3), model.RoomMedia, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanAccessRoom(tc.course, model.ModeCourse, tc.room, gates); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestGatesAreConfigurable(t *testing.T) {
	gates := Gates{SpeakingModules: 0, ArcadeVocabulary: 1, LibraryGrammar: 1}
	course := courseWith(map[model.Skill]int{model.SkillVocabulary: 1})
	if !CanAccessRoom(course, model.ModeCourse, model.RoomArcade, gates) {
		t.Fatalf("expected arcade to open with relaxed gates")
	}
}

func TestLockReason(t *testing.T) {
	gates := DefaultGates()
	reason := LockReason(courseWith(nil, 1, 2), model.ModeCourse, model.RoomLibrary, gates)
	if reason != "Complete 3 more business Speaking lessons." {
		t.Fatalf("unexpected reason: %q", reason)
	}
	reason = LockReason(courseWith(nil, 1, 2, 3, 4, 5), model.ModeCourse, model.RoomArcade, gates)
	if !strings.Contains(reason, "Game Room") {
		t.Fatalf("unexpected reason: %q", reason)
	}
	reason = LockReason(courseWith(nil, 1, 2, 3, 4, 5), model.ModeCourse, model.RoomMedia, gates)
	if reason != "Complete 10 lesson(s) in Speaking." {
		t.Fatalf("unexpected reason: %q", reason)
	}
}

func TestSpeakingTopicAndTeacher(t *testing.T) {
	if got := SpeakingTopic(model.ReasonBusiness, 4); got != "Negotiations" {
		t.Fatalf("unexpected topic: %q", got)
	}
	if got := SpeakingTopic(model.ReasonPersonal, 6); got != "" {
		t.Fatalf("expected empty topic, got %q", got)
	}
	if name, ok := ParseTeacher("liam"); !ok || name != "Liam" {
		t.Fatalf("unexpected teacher: %q %v", name, ok)
	}
	if name, ok := ParseTeacher(""); !ok || name != DefaultTeacher {
		t.Fatalf("unexpected default teacher: %q", name)
	}
	if _, ok := ParseTeacher("Bob"); ok {
		t.Fatalf("unknown teacher must be rejected")
	}
}
