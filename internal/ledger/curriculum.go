package ledger

import (
	"strings"

	"github.com/verte-zerg/arcade/internal/model"
)

// Teachers are the lesson personas the API understands.
var Teachers = []string{"Emma", "Liam", "Olivia", "Noah", "Sophia"}

// DefaultTeacher is used when no persona is chosen.
const DefaultTeacher = "Emma"

// DefaultBadge is awarded when the lesson API names none.
const DefaultBadge = "Lesson Star"

var speakingTopics = map[model.ReasonBucket][SpeakingModules]string{
	model.ReasonBusiness: {
		"Storytelling in Business",
		"Quick Thinking in Meetings",
		"Professional Networking",
		"Negotiations",
		"Presentation Delivery",
	},
	model.ReasonTravel: {
		"Asking for Directions",
		"Ordering Food",
		"Booking Accommodations",
		"Making Small Talk",
		"Handling Emergencies",
	},
	model.ReasonPersonal: {
		"Casual Conversation",
		"Building Rapport in Conversations",
		"Debating",
		"Describing Experiences",
		"Expressing Opinions",
	},
}

// SpeakingTopic names module lesson idx (1-based) of the speaking curriculum for bucket.
func SpeakingTopic(bucket model.ReasonBucket, idx int) string {
	if idx < 1 || idx > SpeakingModules {
		return ""
	}
	topics, ok := speakingTopics[bucket]
	if !ok {
		topics = speakingTopics[model.ReasonPersonal]
	}
	return topics[idx-1]
}

// ParseTeacher matches name against Teachers ignoring case. An empty name selects DefaultTeacher.
func ParseTeacher(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultTeacher, true
	}
	for _, t := range Teachers {
		if strings.EqualFold(t, name) {
			return t, true
		}
	}
	return "", false
}
