package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/team-sync/internal/corpus"
)

var checkSrc string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Load and validate the corpus",
	Long: `Loads the corpus and runs every cross-file invariant. All violations
are reported at once; any violation yields a nonzero exit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := resolveSrc(checkSrc)
		if err != nil {
			return err
		}
		c, err := corpus.Load(src)
		if err != nil {
			var parse *corpus.ParseError
			if errors.As(err, &parse) {
				return err
			}
			return setupErrf("loading corpus from %s: %w", src, err)
		}
		if err := corpus.Validate(c); err != nil {
			return err
		}
		fmt.Printf("corpus OK: %d people, %d teams, %d repos\n",
			len(c.People), len(c.Teams), len(c.Repos))
		return nil
	},
}

// resolveSrc prefers the flag, then the config file.
func resolveSrc(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.Src, nil
}

func init() {
	checkCmd.Flags().StringVar(&checkSrc, "src", "", "corpus directory (overrides config)")
	rootCmd.AddCommand(checkCmd)
}
