package progress

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// TerminalWidth returns the column count of w, or 0 when w is not a terminal.
func TerminalWidth(w io.Writer) int {
	file, ok := w.(*os.File)
	if !ok {
		return 0
	}
	width, _, err := term.GetSize(int(file.Fd()))
	if err != nil {
		return 0
	}
	return width
}

type cell struct {
	r       rune
	width   int
	isSpace bool
}

// Wrap breaks text at word boundaries so no line exceeds width display
// columns. Existing line breaks are kept. Words wider than width are split.
func Wrap(text string, width int) string {
	if width <= 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = wrapLine(line, width)
	}
	return strings.Join(lines, "\n")
}

func wrapLine(text string, width int) string {
	var out strings.Builder
	line := make([]cell, 0, len(text))
	lineWidth := 0
	lastSpaceIdx := -1

	runes := []rune(text)
	for i := 0; i < len(runes); {
		r := runes[i]
		item := cell{r: r, width: runewidth.RuneWidth(r), isSpace: r == ' '}
		if lineWidth+item.width > width && len(line) > 0 {
			if item.isSpace {
				// A space at the break point is dropped.
				writeCells(&out, line)
				out.WriteRune('\n')
				line = line[:0]
				lineWidth = 0
				lastSpaceIdx = -1
				i++
				continue
			}
			if lastSpaceIdx >= 0 {
				writeCells(&out, line[:lastSpaceIdx])
				out.WriteRune('\n')
				line = append([]cell{}, line[lastSpaceIdx+1:]...)
				lineWidth = cellsWidth(line)
				lastSpaceIdx = lastSpace(line)
			} else {
				writeCells(&out, line)
				out.WriteRune('\n')
				line = line[:0]
				lineWidth = 0
				lastSpaceIdx = -1
			}
			continue
		}
		line = append(line, item)
		lineWidth += item.width
		if item.isSpace {
			lastSpaceIdx = len(line) - 1
		}
		i++
	}
	writeCells(&out, line)
	return out.String()
}

func writeCells(b *strings.Builder, line []cell) {
	for _, item := range line {
		b.WriteRune(item.r)
	}
}

func cellsWidth(line []cell) int {
	total := 0
	for _, item := range line {
		total += item.width
	}
	return total
}

func lastSpace(line []cell) int {
	for i := len(line) - 1; i >= 0; i-- {
		if line[i].isSpace {
			return i
		}
	}
	return -1
}
