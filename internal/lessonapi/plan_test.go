package lessonapi

import (
	"reflect"
	"testing"
)

const samplePlan = `## Welcome
Hello! 🚀

## Quick Check
Sort the phrases:
- [ ] Let's get started
- [ ] To begin with
- [] Before I forget
- [ ] One more thing

## Exercises
- Fill in the blank: I ___ to the station.
- Rewrite the sentence in the past tense.

## Vocabulary
| Word | Meaning | Example |
|------|---------|---------|
| **itinerary** | travel plan | Check the itinerary. |
| fare | ticket price | The fare is $2. |

## Badge
🏅 **Route Master**

## Feedback
Placeholder.
`

func TestParsePlan(t *testing.T) {
	p := ParsePlan(samplePlan)
	wantQuick := []string{"Let's get started", "To begin with", "Before I forget", "One more thing"}
	if !reflect.DeepEqual(p.QuickCheck, wantQuick) {
		t.Fatalf("unexpected quick check: %q", p.QuickCheck)
	}
	if len(p.Exercises) != 2 || p.Exercises[1] != "Rewrite the sentence in the past tense." {
		t.Fatalf("unexpected exercises: %q", p.Exercises)
	}
	wantVocab := []VocabItem{
		{Word: "itinerary", Meaning: "travel plan", Example: "Check the itinerary."},
		{Word: "fare", Meaning: "ticket price", Example: "The fare is $2."},
	}
	if !reflect.DeepEqual(p.Vocabulary, wantVocab) {
		t.Fatalf("unexpected vocabulary: %+v", p.Vocabulary)
	}
	if p.Badge != "Route Master" {
		t.Fatalf("unexpected badge: %q", p.Badge)
	}
}

func TestParsePlanBulletVocabulary(t *testing.T) {
	p := ParsePlan("## Vocabulary\n- commute: travel to work (I commute by bus)\n- broken line\n")
	if len(p.Vocabulary) != 1 || p.Vocabulary[0].Example != "I commute by bus" {
		t.Fatalf("unexpected vocabulary: %+v", p.Vocabulary)
	}
}

func TestParsePlanWithoutSections(t *testing.T) {
	p := ParsePlan("just text")
	if p.Badge != "" || len(p.QuickCheck) != 0 || len(p.Vocabulary) != 0 || len(p.Exercises) != 0 {
		t.Fatalf("expected empty plan, got %+v", p)
	}
}

func TestUsedPhrasesDeduplicates(t *testing.T) {
	phrases, vocab := UsedPhrases([]string{samplePlan, samplePlan})
	if len(phrases) != 4 || len(vocab) != 2 {
		t.Fatalf("unexpected used lists: %q %q", phrases, vocab)
	}
}
