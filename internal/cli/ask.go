// ask.go implements the one-shot "medchat ask" command for
// non-interactive use and scripting.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question and print the answer",
	Long: `Ask sends one question to the assistant and prints the answer.
By default it continues the last active conversation; use --new to
start a fresh one, or --convo to target a specific conversation.
An attached image is sent alongside the question as its caption.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

var (
	askImageFlag string
	askConvoFlag string
	askNewFlag   bool
)

func init() {
	askCmd.Flags().StringVar(&askImageFlag, "image", "", "Path to an image file to send with the question")
	askCmd.Flags().StringVar(&askConvoFlag, "convo", "", "Conversation id to continue")
	askCmd.Flags().BoolVar(&askNewFlag, "new", false, "Start a fresh conversation")
}

func runAsk(cmd *cobra.Command, args []string) error {
	env, err := bootstrap()
	if err != nil {
		return err
	}
	defer env.close()

	if err := env.requireAuth("ask"); err != nil {
		return err
	}

	ctx := context.Background()
	if err := env.service.RefreshConversations(ctx); err != nil {
		return fmt.Errorf("loading conversations: %w", err)
	}

	switch {
	case askNewFlag:
		if _, err := env.service.NewConversation(ctx); err != nil {
			return fmt.Errorf("creating conversation: %w", err)
		}
	case askConvoFlag != "":
		if err := env.service.SelectConversation(ctx, askConvoFlag); err != nil {
			return fmt.Errorf("selecting conversation: %w", err)
		}
	default:
		// Best effort: no saved conversation just means a new one is
		// created on send.
		_ = env.service.RestoreLast(ctx)
	}

	if askImageFlag != "" {
		data, readErr := os.ReadFile(askImageFlag)
		if readErr != nil {
			return fmt.Errorf("reading image: %w", readErr)
		}
		env.service.AttachImage(filepath.Base(askImageFlag), data)
	}

	answer, err := env.service.SendTurn(ctx, args[0], false)
	if err != nil {
		return fmt.Errorf("sending question: %w", err)
	}

	fmt.Println(answer)
	return nil
}
