package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fsimkovic/pyjob/internal/config"
)

var confCmd = &cobra.Command{
	Use:   "conf KEY:VALUE...",
	Short: "Configuration setup",
	Long: `Write key:value pairs into the persistent configuration store.
A value of None deletes the key.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConf,
}

func runConf(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	for _, pair := range args {
		kv := strings.SplitN(pair, ":", 2)
		if len(kv) != 2 {
			return fmt.Errorf("pyjob: invalid key:value pair %q", pair)
		}
		value := config.Typecast(kv[1])
		if value == nil {
			if err := cfg.Delete(kv[0]); err != nil {
				return err
			}
			continue
		}
		if err := cfg.Set(kv[0], value); err != nil {
			return err
		}
	}
	return cfg.Write()
}
