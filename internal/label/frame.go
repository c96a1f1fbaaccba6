package label

import (
	"encoding/csv"
	"fmt"
	"image"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/golang/geo/r3"
)

// EyeInfo is the per-eye part of a frame row
type EyeInfo struct {
	Pupil  image.Point // image coordinates
	Found  bool        // pupil located
	Box    [4]int      // x, y, w, h
	HasBox bool        // eye region extracted
}

// FrameRow is one captured frame: gaze target, both eyes and head pose
type FrameRow struct {
	Image       string
	TargetX     float64
	TargetY     float64
	Left        EyeInfo
	Right       EyeInfo
	Rotation    r3.Vector
	Translation r3.Vector
}

// Record returns the CSV fields of the row. Missing pupils and boxes are
// written as empty fields.
func (r FrameRow) Record() []string {
	rec := make([]string, 0, 17)
	rec = append(rec, r.Image, formatFloat(r.TargetX), formatFloat(r.TargetY))
	rec = append(rec, r.Left.fields()...)
	rec = append(rec, r.Right.fields()...)
	rec = append(rec, JoinVector(r.Rotation), JoinVector(r.Translation))
	return rec
}

func (e EyeInfo) fields() []string {
	out := make([]string, 6)
	if e.Found {
		out[0] = strconv.Itoa(e.Pupil.X)
		out[1] = strconv.Itoa(e.Pupil.Y)
	}
	if e.HasBox {
		for i, v := range e.Box {
			out[2+i] = strconv.Itoa(v)
		}
	}
	return out
}

// JoinVector formats a vector as comma-joined decimals
func JoinVector(v r3.Vector) string {
	return strings.Join([]string{formatFloat(v.X), formatFloat(v.Y), formatFloat(v.Z)}, ",")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// FrameWriter appends frame rows as CSV; safe for concurrent use
type FrameWriter struct {
	mu sync.Mutex
	w  *csv.Writer
}

// NewFrameWriter creates a frame row writer on w
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: csv.NewWriter(w)}
}

// Write appends one row and flushes it
func (f *FrameWriter) Write(row FrameRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.w.Write(row.Record()); err != nil {
		return fmt.Errorf("failed to write frame row: %w", err)
	}
	f.w.Flush()
	if err := f.w.Error(); err != nil {
		return fmt.Errorf("failed to flush frame row: %w", err)
	}
	return nil
}
