package pipeline

import (
	"gocv.io/x/gocv"

	"github.com/dudu/gazeprep/internal/camera"
	"github.com/dudu/gazeprep/internal/eye"
	"github.com/dudu/gazeprep/internal/headpose"
	"github.com/dudu/gazeprep/internal/landmark"
	"github.com/dudu/gazeprep/internal/pupil"
)

// RegionExtractor cuts one eye out of a face image
type RegionExtractor interface {
	Extract(img gocv.Mat, shape landmark.Accessor, which landmark.Eye) (*eye.Region, error)
}

// PupilLocator finds the pupil in an eye crop
type PupilLocator interface {
	Locate(crop gocv.Mat) (pupil.Detection, error)
	Close() error
}

// PoseEstimator recovers the head pose from landmarks
type PoseEstimator interface {
	Estimate(shape landmark.Accessor, cam camera.Intrinsics) (headpose.Pose, error)
}
