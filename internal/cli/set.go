// set.go implements "medchat config set" for persisted preferences
// (language and theme).
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/medchat-dev/medchat/internal/store"
)

var setCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Persist a preference (lang: vi|en, theme: dark|light)",
	Args:  cobra.ExactArgs(2),
	RunE:  runSet,
}

var validSettings = map[string]map[string]bool{
	"lang":  {"vi": true, "en": true},
	"theme": {"dark": true, "light": true},
}

func runSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	allowed, ok := validSettings[key]
	if !ok {
		return fmt.Errorf("unknown setting %q (valid: lang, theme)", key)
	}
	if !allowed[value] {
		return fmt.Errorf("invalid value %q for %s", value, key)
	}

	env, err := bootstrap()
	if err != nil {
		return err
	}
	defer env.close()

	storeKey := store.KeyLang
	if key == "theme" {
		storeKey = store.KeyTheme
	}
	if err := env.store.Set(storeKey, value); err != nil {
		return fmt.Errorf("saving setting: %w", err)
	}

	fmt.Printf("%s = %s\n", key, value)
	return nil
}
