package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ayusman/spotter/internal/session"
	"github.com/ayusman/spotter/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Browse stored sessions",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored sessions, newest first",
		Args:  cobra.NoArgs,
		Run:   runSessionsList,
	}
	list.Flags().IntP("limit", "l", 20, "Max results (0 for all)")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored session with its reps",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionsShow,
	}

	rm := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a stored session",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionsRm,
	}

	cmd.AddCommand(list, show, rm)
	RootCmd.AddCommand(cmd)
}

// storedSession is the JSON shape printed for a stored session.
type storedSession struct {
	ID        string           `json:"id"`
	Exercise  string           `json:"exercise"`
	TotalReps int              `json:"total_reps"`
	Attempts  int              `json:"attempts"`
	StartedAt string           `json:"started_at"`
	EndedAt   string           `json:"ended_at,omitempty"`
	Advice    string           `json:"advice,omitempty"`
	Summary   *session.Summary `json:"summary,omitempty"`
	Stats     *session.Stats   `json:"stats,omitempty"`
}

func toStored(s *store.Session) storedSession {
	out := storedSession{
		ID:        s.ID,
		Exercise:  s.Exercise,
		TotalReps: s.TotalReps,
		Attempts:  s.Attempts,
		StartedAt: s.StartedAt.Format("2006-01-02 15:04:05"),
		Advice:    s.Advice,
	}
	if !s.EndedAt.IsZero() {
		out.EndedAt = s.EndedAt.Format("2006-01-02 15:04:05")
	}
	if s.Reps != nil {
		sum := session.Summary{ExerciseName: s.Exercise, TotalReps: s.TotalReps, Reps: s.Reps}
		stats := session.ComputeStats(sum)
		out.Summary = &sum
		out.Stats = &stats
	}
	return out
}

func runSessionsList(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")

	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	sessions, err := s.Sessions().List()
	if err != nil {
		exitErr("list", err)
	}
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}

	out := cmd.OutOrStdout()
	if formatFlag == "text" {
		for _, sess := range sessions {
			fmt.Fprintf(out, "%s  %s  %-8s %d/%d reps\n", sess.ID, sess.StartedAt.Format("2006-01-02 15:04"), sess.Exercise, sess.TotalReps, sess.Attempts)
		}
		return
	}

	items := make([]storedSession, 0, len(sessions))
	for _, sess := range sessions {
		items = append(items, toStored(sess))
	}
	printJSON(out, items)
}

func runSessionsShow(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	sess, err := s.Sessions().Get(args[0])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			exitErr("show", fmt.Errorf("session %s not found", args[0]))
		}
		exitErr("show", err)
	}

	out := cmd.OutOrStdout()
	if formatFlag == "text" {
		writeSessionText(out, toStored(sess))
		return
	}
	printJSON(out, toStored(sess))
}

func writeSessionText(w io.Writer, s storedSession) {
	fmt.Fprintf(w, "Session %s (%s)\n", s.ID, s.Exercise)
	fmt.Fprintf(w, "Started: %s\n", s.StartedAt)
	fmt.Fprintf(w, "Reps: %d of %d attempts\n", s.TotalReps, s.Attempts)
	if s.Summary != nil {
		for i, rep := range s.Summary.Reps {
			fmt.Fprintf(w, "  %d. %.1fs valid=%t %v\n", i+1, rep.Duration, rep.IsValid, rep.Feedback)
		}
	}
	if s.Advice != "" {
		fmt.Fprintf(w, "\nCoach:\n%s\n", s.Advice)
	}
}

func runSessionsRm(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.Sessions().Delete(args[0]); err != nil {
		exitErr("rm", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
}
