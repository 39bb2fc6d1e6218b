package pose

import "math"

// Fixture geometry in normalized image coordinates (Y grows downward).
const (
	fixtureAnkleY    = 0.90
	fixtureShin      = 0.15
	fixtureThigh     = 0.15
	fixtureTorso     = 0.25
	fixtureLeftX     = 0.60
	fixtureRightX    = 0.40
	fixtureShoulders = 0.24
)

// StandingFrame returns a front-facing, fully visible upright pose with
// straight knees, shoulder-width stance and hands at chest height.
func StandingFrame() Frame {
	return SquatFrame(180)
}

// SquatFrame returns a front-facing pose whose left and right knee angles
// (hip-knee-ankle) both equal kneeAngle degrees.
func SquatFrame(kneeAngle float64) Frame {
	return SquatFrameLR(kneeAngle, kneeAngle)
}

// SquatFrameLR returns a pose with independent left and right knee angles.
// Ankles and knees stay fixed; hips fold inward as the knees bend so the
// frame never trips the knee valgus check on its own.
func SquatFrameLR(leftAngle, rightAngle float64) Frame {
	f := make(Frame, NumLandmarks)
	vis := 0.99
	for i := range f {
		f[i].Visibility = Vis(vis)
	}

	kneeY := fixtureAnkleY - fixtureShin

	f[LeftAnkle] = point(fixtureLeftX, fixtureAnkleY, vis)
	f[RightAnkle] = point(fixtureRightX, fixtureAnkleY, vis)
	f[LeftHeel] = point(fixtureLeftX-0.01, fixtureAnkleY+0.02, vis)
	f[RightHeel] = point(fixtureRightX+0.01, fixtureAnkleY+0.02, vis)
	f[LeftFootIndex] = point(fixtureLeftX+0.02, fixtureAnkleY+0.03, vis)
	f[RightFootIndex] = point(fixtureRightX-0.02, fixtureAnkleY+0.03, vis)
	f[LeftKnee] = point(fixtureLeftX, kneeY, vis)
	f[RightKnee] = point(fixtureRightX, kneeY, vis)

	lr := leftAngle * math.Pi / 180
	rr := rightAngle * math.Pi / 180
	f[LeftHip] = point(fixtureLeftX-fixtureThigh*math.Sin(lr), kneeY+fixtureThigh*math.Cos(lr), vis)
	f[RightHip] = point(fixtureRightX+fixtureThigh*math.Sin(rr), kneeY+fixtureThigh*math.Cos(rr), vis)

	hipX := (f[LeftHip].X + f[RightHip].X) / 2
	hipY := (f[LeftHip].Y + f[RightHip].Y) / 2
	shoulderY := hipY - fixtureTorso

	f[LeftShoulder] = point(hipX+fixtureShoulders/2, shoulderY, vis)
	f[RightShoulder] = point(hipX-fixtureShoulders/2, shoulderY, vis)
	f[LeftElbow] = point(hipX+fixtureShoulders/2, shoulderY+0.10, vis)
	f[RightElbow] = point(hipX-fixtureShoulders/2, shoulderY+0.10, vis)
	f[LeftWrist] = point(hipX+0.05, shoulderY+0.05, vis)
	f[RightWrist] = point(hipX-0.05, shoulderY+0.05, vis)

	noseY := shoulderY - 0.10
	for i := Nose; i <= MouthRight; i++ {
		f[i] = point(hipX, noseY, vis)
	}
	for _, i := range []int{LeftPinky, LeftIndex, LeftThumb} {
		f[i] = f[LeftWrist]
	}
	for _, i := range []int{RightPinky, RightIndex, RightThumb} {
		f[i] = f[RightWrist]
	}

	return f
}

func point(x, y, vis float64) Landmark {
	return Landmark{X: x, Y: y, Z: 0, Visibility: Vis(vis)}
}

// Clone returns a deep copy of the frame.
func (f Frame) Clone() Frame {
	out := make(Frame, len(f))
	for i, l := range f {
		out[i] = l
		if l.Visibility != nil {
			out[i].Visibility = Vis(*l.Visibility)
		}
	}
	return out
}
