package coach

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ayusman/spotter/internal/session"
)

const closingInstruction = "Provide a max of 10 words for performance summary. " +
	"Give criticism and tips for improvement (very short bullet-points, max of 4 points). " +
	"Use Markdown formatting with bullet points. Keep it very short and concise!"

// Prompt renders the per-rep breakdown sent to the coaching backend.
func Prompt(s session.Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Analyze the following training session for %s.\n", s.ExerciseName)
	fmt.Fprintf(&b, "Total Reps: %d\n\n", s.TotalReps)
	b.WriteString("Rep Details:\n")

	for i, rep := range s.Reps {
		fmt.Fprintf(&b, "Rep %d: %.1fs, Valid: %t\n", i+1, rep.Duration, rep.IsValid)

		feedback := "None"
		if len(rep.Feedback) > 0 {
			feedback = strings.Join(rep.Feedback, ", ")
		}
		fmt.Fprintf(&b, "  Feedback given: %s\n", feedback)

		if knee, ok := rep.MinAngles["knee"]; ok {
			fmt.Fprintf(&b, "  Lowest Knee Angle: %.1f degrees\n", knee)
		}
		if knee, ok := rep.StartAngles["knee"]; ok {
			fmt.Fprintf(&b, "  Highest Knee Angle (Start): %.1f degrees\n", knee)
		} else if len(rep.MinAngles) > 0 {
			fmt.Fprintf(&b, "  Depth (Min Angles): %s\n", formatAngles(rep.MinAngles))
		}
		if m := rep.Metrics; m != nil {
			fmt.Fprintf(&b, "  Tempo: %.1fs down, %.1fs up; hip sway %.3f; torso lean %.0f degrees; knee asymmetry %.0f degrees\n",
				m.EccentricDuration, m.ConcentricDuration, m.HipSway, m.TorsoAngle, m.KneeSymmetry)
		}
	}

	b.WriteString("\n")
	b.WriteString(closingInstruction)
	return b.String()
}

func formatAngles(m map[string]float64) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%.1f", k, m[k])
	}
	return strings.Join(parts, ", ")
}
