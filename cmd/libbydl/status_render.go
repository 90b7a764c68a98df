package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"libbydl/internal/supervisor"
)

type checkState int

const (
	checkInfo checkState = iota
	checkPassed
	checkWarning
	checkFailed
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

var checkStyles = map[checkState]struct{ tag, color string }{
	checkInfo:    {"INFO", ansiBlue},
	checkPassed:  {"OK", ansiGreen},
	checkWarning: {"WARN", ansiYellow},
	checkFailed:  {"FAIL", ansiRed},
}

const checkLabelWidth = 20

// checkLine renders "  Label:   [OK] detail", coloured as a whole on a terminal.
func checkLine(label string, state checkState, detail string, colorize bool) string {
	style := checkStyles[state]
	line := fmt.Sprintf("  %-*s [%s]", checkLabelWidth, label+":", style.tag)
	if detail != "" {
		line += " " + detail
	}
	return paint(line, style.color, colorize)
}

// outcomeState maps a recorded attempt outcome onto a display colour.
func outcomeState(outcome string) checkState {
	switch supervisor.Outcome(outcome) {
	case supervisor.OutcomeSuccess:
		return checkPassed
	case supervisor.OutcomeRetry, supervisor.OutcomeSkipped, supervisor.OutcomeInterrupted:
		return checkWarning
	case supervisor.OutcomeBad, supervisor.OutcomeStartFailed:
		return checkFailed
	default:
		return checkInfo
	}
}

func paintOutcome(outcome string, colorize bool) string {
	return paint(outcome, checkStyles[outcomeState(outcome)].color, colorize)
}

func paint(s, color string, colorize bool) string {
	if !colorize || color == "" {
		return s
	}
	return color + s + ansiReset
}

func sectionTitle(title string, colorize bool) string {
	title = strings.TrimSpace(title)
	underline := strings.Repeat("=", len(title))
	return paint(title+"\n"+underline, ansiBlue, colorize)
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Minute:
		return d.Round(time.Second).String()
	default:
		return d.Round(time.Minute).String()
	}
}

func shouldColorize(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
