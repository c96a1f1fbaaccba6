package label

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/golang/geo/r3"

	"github.com/dudu/gazeprep/internal/gaze"
)

// Header is the first line of a label file
const Header = "Image Origin WhichEye 3DGaze 3DHead 2DGaze 2DHead Rmat Smat GazeOrigin"

// Entry is one normalized eye sample in a label file
type Entry struct {
	Image    string // path of the written eye crop
	Origin   string // source frame
	WhichEye string
	Gaze     r3.Vector
	Head     r3.Vector
	Gaze2D   gaze.Angles
	Head2D   gaze.Angles
	Rmat     r3.Vector
	Smat     r3.Vector
	Center   r3.Vector
}

// NewEntry fills an entry from a normalized sample
func NewEntry(image, origin, whichEye string, s *gaze.Sample) Entry {
	return Entry{
		Image:    image,
		Origin:   origin,
		WhichEye: whichEye,
		Gaze:     s.Gaze3D,
		Head:     s.Head3D,
		Gaze2D:   s.Gaze2D,
		Head2D:   s.Head2D,
		Rmat:     s.RotationParams,
		Smat:     s.ScaleParams,
		Center:   s.Origin,
	}
}

// Line renders the entry as a space separated label line
func (e Entry) Line() string {
	return strings.Join([]string{
		e.Image,
		e.Origin,
		e.WhichEye,
		JoinVector(e.Gaze),
		JoinVector(e.Head),
		joinAngles(e.Gaze2D),
		joinAngles(e.Head2D),
		JoinVector(e.Rmat),
		JoinVector(e.Smat),
		JoinVector(e.Center),
	}, " ")
}

func joinAngles(a gaze.Angles) string {
	return formatFloat(a.Yaw) + "," + formatFloat(a.Pitch)
}

// Writer appends label lines after a header; safe for concurrent use
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	header bool
}

// NewWriter creates a label writer; the header is written with the first entry
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write appends one entry
func (l *Writer) Write(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.header {
		if _, err := io.WriteString(l.w, Header+"\n"); err != nil {
			return fmt.Errorf("failed to write label header: %w", err)
		}
		l.header = true
	}
	if _, err := io.WriteString(l.w, e.Line()+"\n"); err != nil {
		return fmt.Errorf("failed to write label line: %w", err)
	}
	return nil
}
