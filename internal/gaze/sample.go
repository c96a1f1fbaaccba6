package gaze

import (
	"fmt"

	"github.com/golang/geo/r3"
	"gocv.io/x/gocv"
)

// Sample is one normalized eye ready for a training set
type Sample struct {
	Image          gocv.Mat
	Gaze3D         r3.Vector
	Gaze2D         Angles
	Head3D         r3.Vector
	Head2D         Angles
	RotationParams r3.Vector
	ScaleParams    r3.Vector
	Origin         r3.Vector
	Mirrored       bool
}

// Close releases the sample image
func (s *Sample) Close() error {
	return s.Image.Close()
}

// SampleOptions controls how a sample is derived from its context
type SampleOptions struct {
	// Scaled selects M·g over R·g for the gaze vector
	Scaled bool
	// Equalize applies histogram equalization to the grayscale eye image
	Equalize bool
	// Mirror flips the image, gaze, head and origin left to right so right
	// eyes share the left-eye convention
	Mirror bool
}

// Sample warps img and derives every vector of a normalized sample
func (c *Context) Sample(img gocv.Mat, opts SampleOptions) (*Sample, error) {
	warped, err := c.WarpImage(img)
	if err != nil {
		return nil, fmt.Errorf("failed to warp eye image: %w", err)
	}
	defer warped.Close()

	warpedImg := warped.Image()
	out := warpedImg.Clone()

	if opts.Equalize {
		gray := gocv.NewMat()
		if out.Channels() == 1 {
			out.CopyTo(&gray)
		} else {
			gocv.CvtColor(out, &gray, gocv.ColorBGRToGray)
		}
		out.Close()
		out = gocv.NewMat()
		gocv.EqualizeHist(gray, &out)
		gray.Close()
	}

	gaze := c.GazeVector(opts.Scaled)
	head := c.HeadVector()
	origin := c.Origin()

	if opts.Mirror {
		gocv.Flip(out, &out, 1)
		gaze = FlipGaze(gaze)
		head = FlipHead(head)
		origin.X = -origin.X
	}

	rvec, svec := c.Params()

	return &Sample{
		Image:          out,
		Gaze3D:         gaze,
		Gaze2D:         GazeTo2D(gaze),
		Head3D:         head,
		Head2D:         HeadTo2D(head),
		RotationParams: rvec,
		ScaleParams:    svec,
		Origin:         origin,
		Mirrored:       opts.Mirror,
	}, nil
}
