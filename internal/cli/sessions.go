package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/damarr/helmsman/internal/config"
	"github.com/damarr/helmsman/internal/logger"
	"github.com/damarr/helmsman/pkg/sessions"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect persisted controller sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted sessions, most recent first",
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session with its plan and steps",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsListLimit int

func init() {
	sessionsListCmd.Flags().IntVar(&sessionsListLimit, "limit", 20, "maximum number of sessions to list (0 for all)")
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func openSessionStore() (*sessions.SQLiteStore, *logger.Logger, error) {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	lg, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	store, err := sessions.Open(cfg.Sessions.Path)
	if err != nil {
		lg.Close()
		return nil, nil, fmt.Errorf("failed to open session store: %w", err)
	}
	return store, lg, nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	store, lg, err := openSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()
	defer lg.Close()

	rows, err := store.ListSessions(sessionsListLimit)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	lg.Debug().Str("component", "cli").Int("count", len(rows)).Msg("Listed sessions")

	if len(rows) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No persisted sessions.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCONVERSATION\tPHASE\tUPDATED\tCOMPLETED")
	for _, row := range rows {
		completed := "-"
		if row.CompletedAt != nil {
			completed = row.CompletedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			row.ID, row.ConversationID, row.Phase.Kind,
			row.UpdatedAt.Format(time.RFC3339), completed)
	}
	return w.Flush()
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	store, lg, err := openSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()
	defer lg.Close()

	row, err := store.GetSession(args[0])
	if err != nil {
		return err
	}
	lg.Debug().Str("component", "cli").Str("session_id", row.ID).Msg("Loaded session")

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session:      %s\n", row.ID)
	fmt.Fprintf(out, "Conversation: %s\n", row.ConversationID)
	fmt.Fprintf(out, "Message:      %s\n", row.MessageID)
	fmt.Fprintf(out, "Phase:        %s\n", row.Phase.Kind)
	if row.FinalResponse != "" {
		fmt.Fprintf(out, "Response:     %s\n", row.FinalResponse)
	}
	if row.CompletedAt != nil {
		fmt.Fprintf(out, "Completed:    %s\n", row.CompletedAt.Format(time.RFC3339))
	}

	plan, err := store.GetPlan(row.ID)
	if err != nil {
		fmt.Fprintln(out, "No plan recorded.")
		return nil
	}

	fmt.Fprintf(out, "\nGoal: %s (revision %d)\n", plan.Goal, plan.RevisionCount)
	steps, err := store.GetPlanSteps(plan.ID)
	if err != nil {
		return fmt.Errorf("failed to list plan steps: %w", err)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tSTEP\tSTATUS\tDESCRIPTION")
	for _, step := range steps {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", step.Sequence, step.ID, step.Status, step.Description)
	}
	return w.Flush()
}
