package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ayusman/spotter/internal/app"
	"github.com/ayusman/spotter/internal/exercise"
	"github.com/ayusman/spotter/internal/session"
	"github.com/ayusman/spotter/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "replay <frames.jsonl>",
		Short: "Analyze a recorded session",
		Long: "Feed a JSON-lines landmark recording through the analyzer and print the summary. " +
			"Each line is either {\"timestamp_ms\":..., \"landmarks\":[...]} or a bare landmark array. Use - for stdin.",
		Args: cobra.ExactArgs(1),
		Run:  runReplay,
	}

	cmd.Flags().StringP("exercise", "e", exercise.DefaultExercise, "Exercise to analyze")
	cmd.Flags().Bool("coach", false, "Ask the configured coach for advice")
	cmd.Flags().Bool("save", false, "Store the session in the history database")
	cmd.Flags().Bool("hooks", false, "Run cue hooks while replaying")
	cmd.Flags().BoolP("verbose", "v", false, "Print every cue and completed rep")

	RootCmd.AddCommand(cmd)
}

func runReplay(cmd *cobra.Command, args []string) {
	name, _ := cmd.Flags().GetString("exercise")
	withCoach, _ := cmd.Flags().GetBool("coach")
	save, _ := cmd.Flags().GetBool("save")
	withHooks, _ := cmd.Flags().GetBool("hooks")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}

	var in io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			exitErr("open recording", err)
		}
		defer f.Close()
		in = f
	}

	var st *store.Store
	if save {
		st, err = openStore(cfg)
		if err != nil {
			exitErr("open store", err)
		}
		defer st.Close()
	}

	c, err := buildApp(cfg, st, withCoach, withHooks)
	if err != nil {
		exitErr("start", err)
	}
	defer c.Close()

	out := cmd.OutOrStdout()
	var onUpdate func(int, session.Update)
	if verbose {
		onUpdate = func(line int, u session.Update) {
			if u.Cue != nil {
				fmt.Fprintf(out, "line %d: %s\n", line, u.Cue.Text)
			}
			if u.Completed != nil {
				fmt.Fprintf(out, "line %d: rep %d finished in %.1fs (valid: %t)\n", line, u.State.Reps, u.Completed.Duration, u.Completed.IsValid)
			}
		}
	}

	res, err := c.app.Replay(cmd.Context(), in, name, onUpdate)
	c.app.Close(cmd.Context())
	if err != nil {
		exitErr("replay", err)
	}

	if formatFlag == "text" {
		writeResultText(out, res)
		return
	}
	printJSON(out, res)
}

func writeResultText(w io.Writer, res *app.Result) {
	s := res.Summary
	fmt.Fprintf(w, "Exercise: %s\n", s.ExerciseName)
	fmt.Fprintf(w, "Reps: %d of %d attempts\n", s.TotalReps, len(s.Reps))
	if res.Stats.Attempts > 0 {
		fmt.Fprintf(w, "Rep time: %.1fs avg (±%.1fs)\n", res.Stats.MeanDuration, res.Stats.StdDevDuration)
		fmt.Fprintf(w, "Knee angle at depth: %.0f° avg, %.0f° deepest\n", res.Stats.MeanMinKnee, res.Stats.DeepestKnee)
	}
	for i, rep := range s.Reps {
		status := "ok"
		if !rep.IsValid {
			status = strings.Join(rep.Feedback, "; ")
		}
		fmt.Fprintf(w, "  %d. %.1fs %s\n", i+1, rep.Duration, status)
	}
	if res.Stored {
		fmt.Fprintf(w, "Saved as %s\n", res.ID)
	}
	if res.Advice != "" {
		fmt.Fprintf(w, "\nCoach:\n%s\n", res.Advice)
	}
}
