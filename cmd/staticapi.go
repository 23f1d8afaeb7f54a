package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/team-sync/internal/staticapi"
)

var staticAPISrc string

var staticAPICmd = &cobra.Command{
	Use:   "static-api <out-dir>",
	Short: "Emit JSON snapshots of the materialised model",
	Long: `Writes one JSON file per team, person, repo and mailing list, plus
aggregate indexes, for consumption by the website.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := resolveSrc(staticAPISrc)
		if err != nil {
			return err
		}
		m, err := loadModel(src)
		if err != nil {
			return err
		}
		if err := staticapi.Generate(m, args[0]); err != nil {
			return err
		}
		fmt.Printf("wrote static API to %s\n", args[0])
		return nil
	},
}

func init() {
	staticAPICmd.Flags().StringVar(&staticAPISrc, "src", "", "corpus directory (overrides config)")
	rootCmd.AddCommand(staticAPICmd)
}
