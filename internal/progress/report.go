// Package progress derives and renders the learner progress report.
package progress

import (
	"context"

	"github.com/verte-zerg/arcade/internal/ledger"
	"github.com/verte-zerg/arcade/internal/model"
)

// Report targets.
const (
	LessonsTarget  = 10
	SkillTarget    = 5
	LessonsPerStep = 2
)

// SkillRow is the progress of one skill.
type SkillRow struct {
	Skill     model.Skill `json:"skill"`
	Lessons   int         `json:"lessons"`
	Percent   float64     `json:"percent"`
	Completed int         `json:"completed"`
	Required  int         `json:"required"`
}

// ModuleRow is one lesson of the speaking curriculum.
type ModuleRow struct {
	Index     int    `json:"module_lesson"`
	Topic     string `json:"topic"`
	Completed bool   `json:"completed"`
}

// Report contains precomputed data for progress rendering.
type Report struct {
	Profile          model.Profile      `json:"profile"`
	LessonsCompleted int                `json:"lessons_completed"`
	OverallPercent   float64            `json:"overall_percent"`
	Level            int                `json:"level"`
	Skills           []SkillRow         `json:"skills"`
	Badges           []string           `json:"badges"`
	Bucket           model.ReasonBucket `json:"bucket"`
	Modules          []ModuleRow        `json:"modules"`
	NextModule       int                `json:"next_module"`
}

// BuildReport loads and prepares data for progress rendering.
func BuildReport(ctx context.Context, l *ledger.Ledger, userID string) (Report, error) {
	snap, err := l.Snapshot(ctx, userID)
	if err != nil {
		return Report{}, err
	}
	return FromSnapshot(snap), nil
}

// FromSnapshot derives the report from a loaded snapshot.
func FromSnapshot(snap model.Snapshot) Report {
	var profile model.Profile
	if snap.Profile != nil {
		profile = *snap.Profile
	}
	var course model.Course
	if snap.Course != nil {
		course = *snap.Course
	}

	perSkill := map[model.Skill]int{}
	completed := 0
	for _, l := range snap.Lessons {
		if !l.Completed {
			continue
		}
		completed++
		perSkill[l.SkillFocus]++
	}

	r := Report{
		Profile:          profile,
		LessonsCompleted: completed,
		OverallPercent:   percent(completed, LessonsTarget),
		Level:            completed/LessonsPerStep + 1,
		Bucket:           profile.ReasonBucket(),
		NextModule:       ledger.NextModule(course),
		Badges:           []string{},
	}
	for _, s := range model.Skills {
		row := SkillRow{Skill: s, Lessons: perSkill[s], Percent: percent(perSkill[s], SkillTarget)}
		if sp, ok := course.Skill(s); ok {
			row.Completed = sp.Completed
			row.Required = sp.Required
		}
		r.Skills = append(r.Skills, row)
	}
	for _, b := range snap.Badges {
		r.Badges = append(r.Badges, b.Name)
	}

	var speaking model.SkillProgress
	if sp, ok := course.Skill(model.SkillSpeaking); ok {
		speaking = *sp
	}
	for idx := 1; idx <= ledger.SpeakingModules; idx++ {
		r.Modules = append(r.Modules, ModuleRow{
			Index:     idx,
			Topic:     ledger.SpeakingTopic(r.Bucket, idx),
			Completed: speaking.HasModule(idx),
		})
	}
	return r
}

func percent(n, target int) float64 {
	if target <= 0 {
		return 0
	}
	p := float64(n) / float64(target) * 100
	if p > 100 {
		return 100
	}
	return p
}
