package preview

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"github.com/dudu/gazeprep/internal/pipeline"
)

var (
	boxColor   = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	pupilColor = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	textColor  = color.RGBA{R: 0, G: 255, B: 255, A: 255}
)

// Window manages the preview display
type Window struct {
	window     *gocv.Window
	name       string
	lastFrame  time.Time
	frameCount int
	fps        float64
}

// NewWindow creates a new preview window
func NewWindow(name string) *Window {
	window := gocv.NewWindow(name)
	window.ResizeWindow(1280, 720)
	window.MoveWindow(100, 100)
	return &Window{
		window:    window,
		name:      name,
		lastFrame: time.Now(),
	}
}

// Annotate draws eye boxes, pupils and the head pose of a result onto frame
func Annotate(frame *gocv.Mat, r *pipeline.Result) {
	for _, eye := range r.Eyes {
		if eye.HasBox {
			gocv.Rectangle(frame, eye.Box.Rect(), boxColor, 1)
		}
		if eye.Pupil.Found() {
			gocv.Circle(frame, eye.Pupil.Center, 2, pupilColor, -1)
		}
	}

	status := "pose: none"
	if r.PoseFound {
		rot := r.Pose.Rotation
		status = fmt.Sprintf("rvec: %.2f %.2f %.2f", rot.X, rot.Y, rot.Z)
	}
	gocv.PutText(frame, status, image.Pt(10, 60),
		gocv.FontHersheyPlain, 1.5, textColor, 2)
}

// Show displays a frame and updates the FPS counter
func (w *Window) Show(frame *gocv.Mat) {
	w.frameCount++
	now := time.Now()

	elapsed := now.Sub(w.lastFrame)
	if elapsed >= time.Second {
		w.fps = float64(w.frameCount) / elapsed.Seconds()
		w.frameCount = 0
		w.lastFrame = now
	}

	fpsText := fmt.Sprintf("FPS: %.1f", w.fps)
	gocv.PutText(frame, fpsText, image.Pt(10, 30),
		gocv.FontHersheyPlain, 2, boxColor, 2)

	w.window.IMShow(*frame)
}

// WaitKey waits for key press, returns key code or -1
func (w *Window) WaitKey(delayMs int) int {
	return w.window.WaitKey(delayMs)
}

// FPS returns current frames per second
func (w *Window) FPS() float64 {
	return w.fps
}

// Close closes the window
func (w *Window) Close() error {
	if w.window != nil {
		return w.window.Close()
	}
	return nil
}
