// convos.go implements the conversation listing and deletion commands.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var convosCmd = &cobra.Command{
	Use:   "convos",
	Short: "List conversations",
	Args:  cobra.NoArgs,
	RunE:  runConvos,
}

var deleteConvoCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteConvo,
}

func init() {
	convosCmd.AddCommand(deleteConvoCmd)
}

func runConvos(cmd *cobra.Command, args []string) error {
	env, err := bootstrap()
	if err != nil {
		return err
	}
	defer env.close()

	if err := env.requireAuth("convos"); err != nil {
		return err
	}

	ctx := context.Background()
	if err := env.service.RefreshConversations(ctx); err != nil {
		return fmt.Errorf("loading conversations: %w", err)
	}

	convos := env.service.Conversations()
	if len(convos) == 0 {
		fmt.Println("No conversations yet.")
		return nil
	}

	active := env.service.CurrentID()
	for _, c := range convos {
		marker := " "
		if c.ID == active {
			marker = "*"
		}
		fmt.Printf("%s %-36s  %s\n", marker, c.ID, c.DisplayTitle())
	}
	return nil
}

func runDeleteConvo(cmd *cobra.Command, args []string) error {
	env, err := bootstrap()
	if err != nil {
		return err
	}
	defer env.close()

	if err := env.requireAuth("convos delete"); err != nil {
		return err
	}

	ctx := context.Background()
	if err := env.service.RefreshConversations(ctx); err != nil {
		return fmt.Errorf("loading conversations: %w", err)
	}
	if err := env.service.DeleteConversation(ctx, args[0]); err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	fmt.Println("Deleted.")
	return nil
}
