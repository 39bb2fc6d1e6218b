package pose

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// FeatureLen is the length of the classifier input vector: 16 body landmarks x 3 coordinates.
const FeatureLen = 48

// BodyIndices are the landmarks fed to the posture classifier, in input order.
// The face is excluded.
var BodyIndices = [16]int{
	LeftShoulder, RightShoulder,
	LeftElbow, RightElbow,
	LeftWrist, RightWrist,
	LeftHip, RightHip,
	LeftKnee, RightKnee,
	LeftAnkle, RightAnkle,
	LeftHeel, RightHeel,
	LeftFootIndex, RightFootIndex,
}

// Features is the hip-centered, torso-scaled classifier input.
type Features [FeatureLen]float64

func vec(l Landmark) r3.Vec {
	return r3.Vec{X: l.X, Y: l.Y, Z: l.Z}
}

// Normalize converts a frame into the classifier feature vector.
// Coordinates are centered on the hip midpoint and divided by the left
// shoulder-to-hip distance. A zero distance falls back to a divisor of 1.
func Normalize(f Frame) (Features, error) {
	var out Features
	if err := f.Validate(); err != nil {
		return out, err
	}

	center := r3.Scale(0.5, r3.Add(vec(f[LeftHip]), vec(f[RightHip])))

	scale := r3.Norm(r3.Sub(vec(f[LeftShoulder]), vec(f[LeftHip])))
	if scale == 0 {
		scale = 1.0
	}

	for i, idx := range BodyIndices {
		p := r3.Scale(1/scale, r3.Sub(vec(f[idx]), center))
		out[i*3] = p.X
		out[i*3+1] = p.Y
		out[i*3+2] = p.Z
	}

	return out, nil
}
