package ui

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/fatih/color"
)

var (
	markOK   = color.New(color.FgGreen).Sprint("✓")
	markFail = color.New(color.FgRed).Sprint("✗")
	markWarn = color.New(color.FgYellow).Sprint("⚠")
	markInfo = color.New(color.FgBlue).Sprint("ℹ")
)

// StatusLine prints one-line outcome messages for a run.
type StatusLine struct {
	writer io.Writer
}

// NewStatusLineTo creates a status line writer on w.
func NewStatusLineTo(w io.Writer) *StatusLine {
	return &StatusLine{writer: w}
}

func (sl *StatusLine) line(mark, message string) {
	fmt.Fprintln(sl.writer, mark, message)
}

func (sl *StatusLine) Success(message string) { sl.line(markOK, message) }
func (sl *StatusLine) Fail(message string)    { sl.line(markFail, message) }
func (sl *StatusLine) Warning(message string) { sl.line(markWarn, message) }
func (sl *StatusLine) Info(message string)    { sl.line(markInfo, message) }

// FileLink renders path as an OSC 8 link to its absolute file:// URL.
// Terminals without OSC 8 support show the plain path.
func FileLink(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return "\x1b]8;;file://" + filepath.ToSlash(abs) + "\x07" + path + "\x1b]8;;\x07"
}
