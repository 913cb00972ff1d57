package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/verte-zerg/arcade/internal/model"
)

// SpeakingModules is the number of module lessons in one pass of the speaking curriculum.
const SpeakingModules = 5

// DefaultRequired is the per-skill completion target of a new course.
const DefaultRequired = 10

// CourseLedger owns per-skill completion counters and the speaking module progression.
type CourseLedger struct {
	repo     Repository
	required int
}

// GetOrInit returns the stored course, creating and persisting the six-skill default
// when none exists or the stored one has no skills.
func (c *CourseLedger) GetOrInit(ctx context.Context, userID string) (model.Course, error) {
	fresh, err := c.freshFor(ctx, userID)
	if err != nil {
		return model.Course{}, err
	}
	var course model.Course
	err = c.repo.Update(ctx, userID, keyCourse, func(old []byte) ([]byte, error) {
		course = model.Course{}
		if decodeJSON(old, &course) && len(course.Skills) > 0 {
			return old, nil
		}
		course = fresh
		return json.Marshal(course)
	})
	if err != nil {
		return model.Course{}, err
	}
	return course, nil
}

// Load returns the stored course, or an unpersisted default.
func (c *CourseLedger) Load(ctx context.Context, userID string) (model.Course, error) {
	var course model.Course
	ok, err := loadJSON(ctx, c.repo, userID, keyCourse, &course)
	if err != nil {
		return model.Course{}, err
	}
	if ok && len(course.Skills) > 0 {
		return course, nil
	}
	return c.freshFor(ctx, userID)
}

// Exists reports whether a course with skills is stored for the user.
func (c *CourseLedger) Exists(ctx context.Context, userID string) (bool, error) {
	var stored model.Course
	ok, err := loadJSON(ctx, c.repo, userID, keyCourse, &stored)
	if err != nil {
		return false, err
	}
	return ok && len(stored.Skills) > 0, nil
}

// RecordCompletion adds one completion to skill. For Speaking, a non-zero moduleLesson
// is recorded once per module index; the counter increments regardless.
func (c *CourseLedger) RecordCompletion(ctx context.Context, userID string, skill model.Skill, moduleLesson int) (model.Course, error) {
	s, ok := model.ParseSkill(string(skill))
	if !ok {
		return model.Course{}, &UnknownSkillError{Skill: string(skill)}
	}
	if moduleLesson < 0 || moduleLesson > SpeakingModules {
		return model.Course{}, fmt.Errorf("%w: %d", ErrInvalidModule, moduleLesson)
	}
	fresh, err := c.freshFor(ctx, userID)
	if err != nil {
		return model.Course{}, err
	}

	var course model.Course
	err = c.repo.Update(ctx, userID, keyCourse, func(old []byte) ([]byte, error) {
		course = model.Course{}
		if !decodeJSON(old, &course) || len(course.Skills) == 0 {
			course = fresh
		}
		sp, ok := course.Skill(s)
		if !ok {
			return nil, &UnknownSkillError{Skill: string(s)}
		}
		sp.Completed++
		if s == model.SkillSpeaking && moduleLesson > 0 {
			if !sp.HasModule(moduleLesson) {
				sp.Lessons = append(sp.Lessons, model.ModuleLessonRecord{ModuleIndex: moduleLesson, Completed: true})
			}
			sp.LastModule = moduleLesson
		}
		return json.Marshal(course)
	})
	if err != nil {
		return model.Course{}, err
	}
	return course, nil
}

// NextSpeakingModule returns the module lesson to generate next, in 1..SpeakingModules.
func (c *CourseLedger) NextSpeakingModule(ctx context.Context, userID string) (int, error) {
	course, err := c.Load(ctx, userID)
	if err != nil {
		return 0, err
	}
	return NextModule(course), nil
}

// NextModule walks the speaking curriculum: count+1 until every module is recorded,
// then cycles on from the last recorded module.
func NextModule(course model.Course) int {
	sp, ok := course.Skill(model.SkillSpeaking)
	if !ok {
		return 1
	}
	if count := sp.CompletedModules(); count < SpeakingModules {
		return count + 1
	}
	return sp.LastModule%SpeakingModules + 1
}

// Restore replaces the stored course with a remote copy.
func (c *CourseLedger) Restore(ctx context.Context, userID string, course model.Course) error {
	if len(course.Skills) == 0 {
		return nil
	}
	return putJSON(ctx, c.repo, userID, keyCourse, course)
}

func (c *CourseLedger) reset(ctx context.Context, userID string, profile model.Profile) (model.Course, error) {
	course := c.newCourse(profile)
	if err := putJSON(ctx, c.repo, userID, keyCourse, course); err != nil {
		return model.Course{}, err
	}
	return course, nil
}

func (c *CourseLedger) freshFor(ctx context.Context, userID string) (model.Course, error) {
	profile := defaultProfile(userID)
	var stored model.Profile
	ok, err := loadJSON(ctx, c.repo, userID, keyProfile, &stored)
	if err != nil {
		return model.Course{}, err
	}
	if ok && stored.Level.Valid() {
		profile = stored
	}
	return c.newCourse(profile), nil
}

func (c *CourseLedger) newCourse(profile model.Profile) model.Course {
	required := c.required
	if required <= 0 {
		required = DefaultRequired
	}
	skills := make([]model.SkillProgress, 0, len(model.Skills))
	for _, s := range model.Skills {
		skills = append(skills, model.SkillProgress{
			Skill:    s,
			Required: required,
			Lessons:  []model.ModuleLessonRecord{},
		})
	}
	return model.Course{
		Level:  profile.Level,
		Reason: profile.Reason,
		Age:    profile.Age,
		Skills: skills,
	}
}
