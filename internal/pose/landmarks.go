// Package pose provides body landmark types and feature extraction for exercise analysis.
package pose

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Body landmark indices following the MediaPipe Pose convention.
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
const (
	Nose           = 0
	LeftEyeInner   = 1
	LeftEye        = 2
	LeftEyeOuter   = 3
	RightEyeInner  = 4
	RightEye       = 5
	RightEyeOuter  = 6
	LeftEar        = 7
	RightEar       = 8
	MouthLeft      = 9
	MouthRight     = 10
	LeftShoulder   = 11
	RightShoulder  = 12
	LeftElbow      = 13
	RightElbow     = 14
	LeftWrist      = 15
	RightWrist     = 16
	LeftPinky      = 17
	RightPinky     = 18
	LeftIndex      = 19
	RightIndex     = 20
	LeftThumb      = 21
	RightThumb     = 22
	LeftHip        = 23
	RightHip       = 24
	LeftKnee       = 25
	RightKnee      = 26
	LeftAnkle      = 27
	RightAnkle     = 28
	LeftHeel       = 29
	RightHeel      = 30
	LeftFootIndex  = 31
	RightFootIndex = 32
	NumLandmarks   = 33
)

// ErrMalformed is returned when a frame does not carry a usable landmark set.
var ErrMalformed = errors.New("malformed landmark frame")

// Landmark is one tracked body keypoint.
// Visibility is optional; a nil value means the producer did not report it.
type Landmark struct {
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Z          float64  `json:"z"`
	Visibility *float64 `json:"visibility,omitempty"`
}

// UnmarshalJSON decodes a landmark object. A null entry or a missing x, y
// or z is rejected with ErrMalformed rather than read as zero.
func (l *Landmark) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return fmt.Errorf("%w: null landmark", ErrMalformed)
	}

	var raw struct {
		X          *float64 `json:"x"`
		Y          *float64 `json:"y"`
		Z          *float64 `json:"z"`
		Visibility *float64 `json:"visibility"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.X == nil || raw.Y == nil || raw.Z == nil {
		return fmt.Errorf("%w: landmark needs x, y and z", ErrMalformed)
	}

	*l = Landmark{X: *raw.X, Y: *raw.Y, Z: *raw.Z, Visibility: raw.Visibility}
	return nil
}

// Frame is the full landmark set for one video frame, indexed by the constants above.
type Frame []Landmark

// Visible reports whether the landmark clears the visibility threshold.
// Landmarks without a reported visibility count as visible.
func (l Landmark) Visible(min float64) bool {
	if l.Visibility == nil {
		return true
	}
	return *l.Visibility >= min
}

// Validate checks that the frame has exactly NumLandmarks finite points
// and that any reported visibility lies in [0,1].
func (f Frame) Validate() error {
	if len(f) != NumLandmarks {
		return fmt.Errorf("%w: got %d landmarks, expected %d", ErrMalformed, len(f), NumLandmarks)
	}
	for i, l := range f {
		if !finite(l.X) || !finite(l.Y) || !finite(l.Z) {
			return fmt.Errorf("%w: landmark %d has non-finite coordinates", ErrMalformed, i)
		}
		if l.Visibility != nil {
			v := *l.Visibility
			if !finite(v) || v < 0 || v > 1 {
				return fmt.Errorf("%w: landmark %d visibility %v out of range", ErrMalformed, i, v)
			}
		}
	}
	return nil
}

// AllVisible reports whether every listed landmark is visible at the given threshold.
func (f Frame) AllVisible(min float64, indices ...int) bool {
	for _, i := range indices {
		if i < 0 || i >= len(f) || !f[i].Visible(min) {
			return false
		}
	}
	return true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Vis returns a pointer to v, for building landmarks with a reported visibility.
func Vis(v float64) *float64 {
	return &v
}
