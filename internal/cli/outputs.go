package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/damarr/helmsman/internal/config"
	"github.com/damarr/helmsman/pkg/outputs"
)

var outputsCmd = &cobra.Command{
	Use:   "outputs",
	Short: "Inspect and clean up persisted tool outputs",
}

var outputsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted tool outputs",
	RunE:  runOutputsList,
}

var outputsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete persisted tool outputs older than the retention window",
	RunE:  runOutputsCleanup,
}

var cleanupOlderThanHours int

func init() {
	outputsCleanupCmd.Flags().IntVar(&cleanupOlderThanHours, "older-than", 0, "override retention window in hours (default: configured retention)")
	outputsCmd.AddCommand(outputsListCmd)
	outputsCmd.AddCommand(outputsCleanupCmd)
	rootCmd.AddCommand(outputsCmd)
}

func openOutputStore() (*outputs.SQLiteStore, *config.Config, error) {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := outputs.OpenSQLite(cfg.Outputs.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open output store: %w", err)
	}
	return store, cfg, nil
}

func runOutputsList(cmd *cobra.Command, args []string) error {
	store, _, err := openOutputStore()
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list outputs: %w", err)
	}

	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No persisted tool outputs.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTOOL\tCONVERSATION\tSUCCESS\tCREATED")
	for _, record := range records {
		created := time.UnixMilli(record.CreatedAt).Format(time.RFC3339)
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n",
			record.ID, record.ToolName, record.ConversationID, record.Success, created)
	}
	return w.Flush()
}

func runOutputsCleanup(cmd *cobra.Command, args []string) error {
	store, cfg, err := openOutputStore()
	if err != nil {
		return err
	}
	defer store.Close()

	retention := cfg.OutputRetention()
	if cleanupOlderThanHours > 0 {
		retention = time.Duration(cleanupOlderThanHours) * time.Hour
	}

	cutoff := time.Now().Add(-retention).UnixMilli()
	removed, err := store.DeleteOlderThan(cutoff)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d persisted outputs older than %s.\n", removed, retention)
	return nil
}
