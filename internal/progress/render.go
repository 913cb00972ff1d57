package progress

import (
	"fmt"
	"io"
	"iter"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/verte-zerg/arcade/internal/model"
)

const (
	barWidth        = 20
	timestampLayout = "2006-01-02 15:04"
	previewWidth    = 48
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#C89A3A"))
	doneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}

type painter struct {
	color bool
}

func (p painter) title(s string) string {
	if !p.color {
		return s
	}
	return titleStyle.Render(s)
}

func (p painter) done(s string) string {
	if !p.color {
		return s
	}
	return doneStyle.Render(s)
}

func (p painter) muted(s string) string {
	if !p.color {
		return s
	}
	return mutedStyle.Render(s)
}

// Render writes the progress report as text.
func Render(w io.Writer, r Report, color bool) error {
	p := painter{color: color}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", p.title("Your Language Adventure Progress"))
	fmt.Fprintf(&b, "Level %s, age %d, learning for %q (%s)\n", r.Profile.Level, r.Profile.Age, r.Profile.Reason, r.Bucket)
	fmt.Fprintf(&b, "Lessons completed: %d\n", r.LessonsCompleted)
	fmt.Fprintf(&b, "Overall progress: Level %d %s %3.0f%%\n", r.Level, Bar(r.OverallPercent, barWidth), r.OverallPercent)
	fmt.Fprintf(&b, "Daily lessons left: %d\n\n", r.Profile.DailyQuota)

	fmt.Fprintf(&b, "%s\n", p.title("Skills"))
	rows := make([][]string, 0, len(r.Skills))
	for _, s := range r.Skills {
		rows = append(rows, []string{
			string(s.Skill),
			Bar(s.Percent, barWidth/2),
			fmt.Sprintf("%.0f%%", s.Percent),
			fmt.Sprintf("%d/%d", s.Completed, s.Required),
		})
	}
	for _, line := range FormatTable([]string{"Skill", "Lessons", "%", "Course"}, rows, map[int]bool{2: true, 3: true}) {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "\n%s\n", p.title("Speaking modules ("+string(r.Bucket)+")"))
	for _, m := range r.Modules {
		mark := p.muted("[ ]")
		if m.Completed {
			mark = p.done("[x]")
		}
		next := ""
		if m.Index == r.NextModule {
			next = p.muted("  <- next")
		}
		fmt.Fprintf(&b, "%s %d. %s%s\n", mark, m.Index, m.Topic, next)
	}

	fmt.Fprintf(&b, "\n%s\n", p.title("Badges"))
	if len(r.Badges) == 0 {
		fmt.Fprintf(&b, "%s\n", p.muted("No badges yet."))
	}
	for _, name := range r.Badges {
		fmt.Fprintf(&b, "🏆 %s\n", name)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// LessonRows turns lessons into table rows, newest first as given.
func LessonRows(lessons iter.Seq[model.LessonEntry]) [][]string {
	var rows [][]string
	for l := range lessons {
		status := "open"
		if l.Completed {
			status = "done"
		}
		module := ""
		if l.ModuleLesson > 0 {
			module = strconv.Itoa(l.ModuleLesson)
		}
		rows = append(rows, []string{
			l.Timestamp.Local().Format(timestampLayout),
			string(l.StudentLevel),
			string(l.SkillFocus),
			module,
			l.Teacher,
			status,
			Preview(l.Feedback, previewWidth),
		})
	}
	return rows
}

// LessonHeaders are the columns of LessonRows.
var LessonHeaders = []string{"When", "Level", "Skill", "Module", "Teacher", "Status", "Feedback"}

// HomeworkRows turns homework into table rows, newest first as given.
func HomeworkRows(homework iter.Seq[model.HomeworkEntry]) [][]string {
	var rows [][]string
	for h := range homework {
		rows = append(rows, []string{
			h.Timestamp.Local().Format(timestampLayout),
			string(h.StudentLevel),
			string(h.SkillFocus),
			strconv.Itoa(len(h.ExerciseAnswers)),
			Preview(h.Notes, previewWidth),
		})
	}
	return rows
}

// HomeworkHeaders are the columns of HomeworkRows.
var HomeworkHeaders = []string{"When", "Level", "Skill", "Answers", "Notes"}

// RenderTable writes headers and rows, or a placeholder when rows is empty.
func RenderTable(w io.Writer, headers []string, rows [][]string, empty string) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, empty)
		return err
	}
	for _, line := range FormatTable(headers, rows, nil) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// Preview flattens s to one line and truncates it to width cells.
func Preview(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	return runewidth.Truncate(s, width, "…")
}
