// Package geometry computes joint angles and derived biometrics from body landmarks.
package geometry

import (
	"math"

	"github.com/ayusman/spotter/internal/pose"
)

// AngleBetween returns the angle in degrees at vertex b formed by the rays
// b->a and b->c, folded into [0,180]. Callers must pass valid points.
func AngleBetween(a, b, c pose.Landmark) float64 {
	radians := math.Atan2(c.Y-b.Y, c.X-b.X) - math.Atan2(a.Y-b.Y, a.X-b.X)
	angle := math.Abs(radians * 180.0 / math.Pi)
	if angle > 180.0 {
		angle = 360.0 - angle
	}
	return angle
}

// Midpoint returns the point halfway between a and b. Visibility is dropped.
func Midpoint(a, b pose.Landmark) pose.Landmark {
	return pose.Landmark{
		X: (a.X + b.X) / 2,
		Y: (a.Y + b.Y) / 2,
		Z: (a.Z + b.Z) / 2,
	}
}

// Distance2D returns the image-plane distance between a and b.
func Distance2D(a, b pose.Landmark) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// HorizontalSpan returns |a.X - b.X|.
func HorizontalSpan(a, b pose.Landmark) float64 {
	return math.Abs(a.X - b.X)
}

// LeanFromVertical returns how far the segment top->bottom tilts away from
// the image vertical, in degrees. 0 means perfectly upright.
func LeanFromVertical(top, bottom pose.Landmark) float64 {
	dx := top.X - bottom.X
	dy := bottom.Y - top.Y
	if dx == 0 && dy == 0 {
		return 0
	}
	return math.Abs(math.Atan2(dx, dy) * 180.0 / math.Pi)
}

// Biometrics holds the squat metrics used by the coaching cue logic.
type Biometrics struct {
	SquatDepth float64 `json:"squat_depth"` // hip-knee-ankle, ~180 standing
	TorsoAngle float64 `json:"torso_angle"` // shoulder-hip-knee, ~180 upright
	HipY       float64 `json:"hip_y"`
	KneeY      float64 `json:"knee_y"`
}

// SquatBiometrics extracts left-side squat metrics from a frame.
// Frames without a full landmark set report a standing pose.
func SquatBiometrics(f pose.Frame) Biometrics {
	if len(f) < pose.NumLandmarks {
		return Biometrics{SquatDepth: 180, TorsoAngle: 180}
	}

	shoulder := f[pose.LeftShoulder]
	hip := f[pose.LeftHip]
	knee := f[pose.LeftKnee]
	ankle := f[pose.LeftAnkle]

	return Biometrics{
		SquatDepth: math.Round(AngleBetween(hip, knee, ankle)),
		TorsoAngle: math.Round(AngleBetween(shoulder, hip, knee)),
		HipY:       hip.Y,
		KneeY:      knee.Y,
	}
}

// IsSquatting reports whether the hip has dropped to within buffer of knee height.
func (b Biometrics) IsSquatting(buffer float64) bool {
	return b.HipY > b.KneeY-buffer
}
