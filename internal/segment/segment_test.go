package segment

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestValidateGrid(t *testing.T) {
	tests := []struct {
		name    string
		grid    []int
		wantErr bool
	}{
		{name: "standard deciles", grid: []int{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}},
		{name: "single value", grid: []int{100}},
		{name: "irregular but increasing", grid: []int{5, 25, 100}},
		{name: "empty", grid: nil, wantErr: true},
		{name: "zero value", grid: []int{0, 50, 100}, wantErr: true},
		{name: "over 100", grid: []int{50, 101}, wantErr: true},
		{name: "duplicate", grid: []int{10, 10, 20}, wantErr: true},
		{name: "decreasing", grid: []int{20, 10}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGrid(tt.grid)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidGrid) {
					t.Fatalf("expected ErrInvalidGrid, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestWindowsCoverTextExactly(t *testing.T) {
	grids := [][]int{
		{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		{25, 50, 75, 100},
		{33, 66, 100},
		{100},
		{7, 99, 100},
	}
	lengths := []int{0, 1, 3, 10, 999, 1000, 1001, 123457}

	for _, grid := range grids {
		for _, l := range lengths {
			windows, err := Windows(l, grid)
			if err != nil {
				t.Fatalf("Windows(%d, %v): %v", l, grid, err)
			}
			if len(windows) != len(grid) {
				t.Fatalf("expected %d windows, got %d", len(grid), len(windows))
			}
			cursor := 0
			for i, w := range windows {
				if w.Progress != grid[i] {
					t.Errorf("window %d progress: got %d, want %d", i, w.Progress, grid[i])
				}
				if w.Start != cursor {
					t.Errorf("window %d not contiguous: start %d, want %d", i, w.Start, cursor)
				}
				if w.End < w.Start {
					t.Errorf("window %d inverted: [%d, %d)", i, w.Start, w.End)
				}
				cursor = w.End
			}
			if cursor != l {
				t.Errorf("grid %v length %d: final window ends at %d, want %d", grid, l, cursor, l)
			}
		}
	}
}

func TestWindowsDecileOffsets(t *testing.T) {
	windows, err := Windows(1000, DefaultGrid(10))
	if err != nil {
		t.Fatal(err)
	}
	// Checkpoint at 20 spans [100, 200).
	w := windows[1]
	if w.Progress != 20 || w.Start != 100 || w.End != 200 {
		t.Fatalf("checkpoint 20: got progress=%d [%d,%d), want 20 [100,200)", w.Progress, w.Start, w.End)
	}
}

func TestEmptyWindows(t *testing.T) {
	// With 5 characters and deciles, several adjacent grid points map to
	// the same offset.
	windows, err := Windows(5, DefaultGrid(10))
	if err != nil {
		t.Fatal(err)
	}
	empties := 0
	for _, w := range windows {
		if w.Empty() {
			empties++
			if w.Len() != 0 {
				t.Errorf("empty window reports length %d", w.Len())
			}
		}
	}
	if empties == 0 {
		t.Fatal("expected at least one empty window for a 5-char text")
	}
}

func TestWindowSlice(t *testing.T) {
	text := strings.Repeat("abcdefghij", 10) // 100 chars
	windows, err := Windows(len(text), []int{50, 100})
	if err != nil {
		t.Fatal(err)
	}
	if got := windows[0].Slice(text); got != text[:50] {
		t.Errorf("first window slice: got %q", got)
	}
	if got := windows[1].Slice(text); got != text[50:] {
		t.Errorf("second window slice: got %q", got)
	}
}

func TestWindowSliceSnapsRuneBoundaries(t *testing.T) {
	// Three two-byte runes: every odd byte offset falls inside a rune.
	text := "ééé"
	grid := []int{25, 50, 75, 100}
	windows, err := Windows(len(text), grid)
	if err != nil {
		t.Fatal(err)
	}

	var rebuilt strings.Builder
	for _, w := range windows {
		s := w.Slice(text)
		if !utf8.ValidString(s) {
			t.Errorf("window %d slice %q is not valid UTF-8", w.Progress, s)
		}
		rebuilt.WriteString(s)
	}
	if rebuilt.String() != text {
		t.Errorf("concatenated slices: got %q, want %q", rebuilt.String(), text)
	}
}

func TestDefaultGrid(t *testing.T) {
	grid := DefaultGrid(10)
	if len(grid) != 10 || grid[0] != 10 || grid[9] != 100 {
		t.Fatalf("unexpected decile grid: %v", grid)
	}
	grid = DefaultGrid(30)
	want := []int{30, 60, 90, 100}
	if len(grid) != len(want) {
		t.Fatalf("step 30: got %v, want %v", grid, want)
	}
	for i := range want {
		if grid[i] != want[i] {
			t.Fatalf("step 30: got %v, want %v", grid, want)
		}
	}
	if err := ValidateGrid(DefaultGrid(0)); err != nil {
		t.Errorf("DefaultGrid(0) should fall back to a valid grid: %v", err)
	}
}

func TestNormalize(t *testing.T) {
	raw := "  Call me\n\nIshmael.\tSome   years ago "
	want := "Call me Ishmael. Some years ago"
	if got := Normalize(raw); got != want {
		t.Errorf("Normalize: got %q, want %q", got, want)
	}
}
