package lessonapi

import (
	"regexp"
	"strings"
)

// VocabItem is one row of the Vocabulary section.
type VocabItem struct {
	Word    string `json:"word"`
	Meaning string `json:"meaning"`
	Example string `json:"example"`
}

// Plan holds the interactive parts extracted from a class plan.
type Plan struct {
	Vocabulary []VocabItem `json:"vocabulary"`
	Exercises  []string    `json:"exercises"`
	QuickCheck []string    `json:"quick_check"`
	Badge      string      `json:"badge,omitempty"`
}

var (
	headingRe   = regexp.MustCompile(`(?m)^##[ \t]+(.+?)[ \t]*$`)
	bulletRe    = regexp.MustCompile(`(?m)^[ \t]*[-*][ \t]+(.+?)[ \t]*$`)
	checkboxRe  = regexp.MustCompile(`(?m)^[ \t]*- \[\s*\][ \t]*(.+?)[ \t]*$`)
	vocabLineRe = regexp.MustCompile(`^([^:]+):\s*(.+?)\s*\(([^)]+)\)$`)
	boldRe      = regexp.MustCompile(`\*\*(.+?)\*\*`)
	separatorRe = regexp.MustCompile(`^[\s|:-]+$`)
)

// ParsePlan extracts vocabulary, exercises, quick check phrases, and the badge
// from a markdown class plan. Missing sections yield empty fields.
func ParsePlan(markdown string) Plan {
	sections := splitSections(markdown)
	plan := Plan{
		Vocabulary: parseVocabulary(sections["vocabulary"]),
		Exercises:  bullets(sections["exercises"]),
		QuickCheck: quickCheck(sections["quick check"]),
	}
	if m := boldRe.FindStringSubmatch(sections["badge"]); m != nil {
		plan.Badge = strings.Trim(strings.TrimSpace(m[1]), "[]")
	}
	return plan
}

// UsedPhrases collects quick check phrases and vocabulary words of the given plans,
// so the API can avoid repeating them.
func UsedPhrases(plans []string) (phrases, vocab []string) {
	seenPhrase := map[string]struct{}{}
	seenWord := map[string]struct{}{}
	for _, md := range plans {
		p := ParsePlan(md)
		for _, ph := range p.QuickCheck {
			if _, ok := seenPhrase[ph]; !ok {
				seenPhrase[ph] = struct{}{}
				phrases = append(phrases, ph)
			}
		}
		for _, v := range p.Vocabulary {
			w := strings.ToLower(v.Word)
			if _, ok := seenWord[w]; !ok {
				seenWord[w] = struct{}{}
				vocab = append(vocab, v.Word)
			}
		}
	}
	return phrases, vocab
}

func splitSections(markdown string) map[string]string {
	out := map[string]string{}
	locs := headingRe.FindAllStringSubmatchIndex(markdown, -1)
	for i, loc := range locs {
		name := strings.ToLower(strings.TrimSpace(markdown[loc[2]:loc[3]]))
		end := len(markdown)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		if _, ok := out[name]; !ok {
			out[name] = markdown[loc[1]:end]
		}
	}
	return out
}

func bullets(section string) []string {
	var out []string
	for _, m := range bulletRe.FindAllStringSubmatch(section, -1) {
		out = append(out, m[1])
	}
	return out
}

func quickCheck(section string) []string {
	var out []string
	for _, m := range checkboxRe.FindAllStringSubmatch(section, -1) {
		out = append(out, m[1])
	}
	return out
}

// parseVocabulary accepts "- word: meaning (example)" bullets and markdown table rows.
func parseVocabulary(section string) []VocabItem {
	var out []VocabItem
	header := true
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "|"):
			if separatorRe.MatchString(line) {
				continue
			}
			cells := strings.Split(strings.Trim(line, "|"), "|")
			if header {
				header = false
				continue
			}
			item := VocabItem{}
			for i, cell := range cells {
				cell = strings.TrimSpace(boldRe.ReplaceAllString(cell, "$1"))
				switch i {
				case 0:
					item.Word = cell
				case 1:
					item.Meaning = cell
				case 2:
					item.Example = cell
				}
			}
			if item.Word != "" {
				out = append(out, item)
			}
		case strings.HasPrefix(line, "- "):
			m := vocabLineRe.FindStringSubmatch(strings.TrimPrefix(line, "- "))
			if m == nil {
				continue
			}
			out = append(out, VocabItem{
				Word:    strings.TrimSpace(boldRe.ReplaceAllString(m[1], "$1")),
				Meaning: m[2],
				Example: m[3],
			})
		}
	}
	return out
}
