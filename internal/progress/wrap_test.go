package progress

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
)

func TestWrapBreaksAtSpaces(t *testing.T) {
	got := Wrap("one two three", 7)
	if got != "one two\nthree" {
		t.Fatalf("unexpected wrap: %q", got)
	}
}

func TestWrapKeepsLineBreaks(t *testing.T) {
	got := Wrap("Warm-up: greet\n\nRole play with a colleague", 10)
	want := "Warm-up:\ngreet\n\nRole play\nwith a\ncolleague"
	if got != want {
		t.Fatalf("unexpected wrap:\n%q\nwant\n%q", got, want)
	}
}

func TestWrapSplitsLongWords(t *testing.T) {
	got := Wrap("abcdefgh", 3)
	if got != "abc\ndef\ngh" {
		t.Fatalf("unexpected wrap: %q", got)
	}
}

func TestWrapRespectsWideRunes(t *testing.T) {
	got := Wrap("日本語 日本語", 6)
	for _, line := range strings.Split(got, "\n") {
		if runewidth.StringWidth(line) > 6 {
			t.Fatalf("line %q exceeds width", line)
		}
	}
	if got != "日本語\n日本語" {
		t.Fatalf("unexpected wrap: %q", got)
	}
}

func TestWrapNoWidth(t *testing.T) {
	if got := Wrap("one two", 0); got != "one two" {
		t.Fatalf("expected text unchanged, got %q", got)
	}
	if TerminalWidth(&bytes.Buffer{}) != 0 {
		t.Fatalf("expected zero width for non-terminal writer")
	}
}
