// backfill.go implements the "medchat backfill-titles" command which
// renames placeholder-titled conversations from their first question.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill-titles",
	Short: "Rename placeholder-titled conversations",
	Args:  cobra.NoArgs,
	RunE:  runBackfill,
}

var backfillLimitFlag int

func init() {
	backfillCmd.Flags().IntVar(&backfillLimitFlag, "limit", 0, "Maximum conversations to rename (default from config)")
}

func runBackfill(cmd *cobra.Command, args []string) error {
	env, err := bootstrap()
	if err != nil {
		return err
	}
	defer env.close()

	if err := env.requireAuth("backfill-titles"); err != nil {
		return err
	}

	ctx := context.Background()
	if err := env.service.RefreshConversations(ctx); err != nil {
		return fmt.Errorf("loading conversations: %w", err)
	}

	renamed := env.service.BackfillTitles(ctx, backfillLimitFlag)
	fmt.Printf("Renamed %d conversation(s).\n", renamed)
	return nil
}
