// auth.go implements the login, register, logout, and whoami commands.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Sign in and store the session tokens",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAuth(args, false)
	},
}

var registerCmd = &cobra.Command{
	Use:   "register [username]",
	Short: "Create an account and sign in",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAuth(args, true)
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the stored session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := bootstrap()
		if err != nil {
			return err
		}
		defer env.close()

		env.session.Logout()
		fmt.Println("Signed out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := bootstrap()
		if err != nil {
			return err
		}
		defer env.close()

		if err := env.requireAuth("whoami"); err != nil {
			return err
		}

		user, err := env.client.Me(context.Background())
		if err != nil {
			return fmt.Errorf("fetching user info: %w", err)
		}
		fmt.Println(user.Username)
		return nil
	},
}

func runAuth(args []string, register bool) error {
	env, err := bootstrap()
	if err != nil {
		return err
	}
	defer env.close()

	var username string
	if len(args) > 0 {
		username = args[0]
	} else {
		username, err = promptLine("Username: ")
		if err != nil {
			return err
		}
	}
	if username == "" {
		return fmt.Errorf("username is required")
	}

	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}
	if password == "" {
		return fmt.Errorf("password is required")
	}

	ctx := context.Background()
	if register {
		if err := env.session.Register(ctx, username, password); err != nil {
			return fmt.Errorf("registration failed: %w", err)
		}
		fmt.Printf("Account created. Signed in as %s.\n", username)
		return nil
	}
	if err := env.session.Login(ctx, username, password); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	fmt.Printf("Signed in as %s.\n", username)
	return nil
}

// promptLine reads one trimmed line from stdin.
func promptLine(prompt string) (string, error) {
	fmt.Print(prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads a password without echoing when stdin is a
// terminal, falling back to a plain line read otherwise.
func promptPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return promptLine(prompt)
	}

	fmt.Print(prompt)
	raw, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(raw), nil
}
