// Package segment splits normalized book text into ordered windows aligned
// to a checkpoint grid of percentage progress values.
package segment

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrInvalidGrid indicates a checkpoint grid that is empty, not strictly
// increasing, or contains values outside (0, 100].
var ErrInvalidGrid = errors.New("invalid checkpoint grid")

// Window is a contiguous slice of the normalized text assigned to one
// checkpoint. Offsets are half-open: the window covers [Start, End).
type Window struct {
	Progress int `json:"progress"`
	Start    int `json:"start"`
	End      int `json:"end"`
}

// Empty reports whether the window covers no text. This happens when the
// text is short enough that two adjacent grid points map to the same offset.
func (w Window) Empty() bool {
	return w.Start >= w.End
}

// Len returns the window length in normalized characters.
func (w Window) Len() int {
	if w.Empty() {
		return 0
	}
	return w.End - w.Start
}

// Slice extracts the window's text from the full normalized text. Grid
// offsets are byte positions and can land inside a multi-byte rune; both
// boundaries snap forward to the next rune start so every slice is valid
// UTF-8. Adjacent windows share a boundary and snap it identically, so
// concatenating all slices reproduces the text.
func (w Window) Slice(text string) string {
	if w.Empty() || w.Start >= len(text) {
		return ""
	}
	end := w.End
	if end > len(text) {
		end = len(text)
	}
	start := snapToRuneStart(text, w.Start)
	end = snapToRuneStart(text, end)
	if start >= end {
		return ""
	}
	return text[start:end]
}

func snapToRuneStart(text string, off int) int {
	for off < len(text) && !utf8.RuneStart(text[off]) {
		off++
	}
	return off
}

// DefaultGrid builds a grid stepping by step percent up to and including 100.
// A step that does not divide 100 still terminates at 100.
func DefaultGrid(step int) []int {
	if step <= 0 || step > 100 {
		step = 10
	}
	var grid []int
	for p := step; p < 100; p += step {
		grid = append(grid, p)
	}
	return append(grid, 100)
}

// ValidateGrid checks that grid values are strictly increasing and inside
// (0, 100].
func ValidateGrid(grid []int) error {
	if len(grid) == 0 {
		return fmt.Errorf("%w: grid is empty", ErrInvalidGrid)
	}
	prev := 0
	for i, p := range grid {
		if p <= 0 || p > 100 {
			return fmt.Errorf("%w: value %d at index %d outside (0,100]", ErrInvalidGrid, p, i)
		}
		if p <= prev {
			return fmt.Errorf("%w: value %d at index %d not strictly increasing", ErrInvalidGrid, p, i)
		}
		prev = p
	}
	return nil
}

// Windows maps a grid onto text of totalLength normalized characters.
// Window i covers [floor(p_{i-1}/100*L), floor(p_i/100*L)) with p_0 = 0, so
// windows are contiguous, non-overlapping, and a grid ending at 100 covers
// [0, L) exactly. Windows may be empty for short texts; the orchestrator
// completes those trivially without a model call.
func Windows(totalLength int, grid []int) ([]Window, error) {
	if err := ValidateGrid(grid); err != nil {
		return nil, err
	}
	if totalLength < 0 {
		return nil, fmt.Errorf("%w: negative text length %d", ErrInvalidGrid, totalLength)
	}

	windows := make([]Window, 0, len(grid))
	start := 0
	for _, p := range grid {
		end := totalLength * p / 100
		windows = append(windows, Window{Progress: p, Start: start, End: end})
		start = end
	}
	return windows, nil
}

// Normalize collapses runs of whitespace in raw extracted text into single
// spaces so offsets are stable regardless of the upstream extractor's line
// breaking. All grid math operates on the normalized form.
func Normalize(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}
