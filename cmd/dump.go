package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/team-sync/internal/model"
)

var dumpSrc string

var dumpTeamCmd = &cobra.Command{
	Use:   "dump-team <name>",
	Short: "Print the expanded record of one team",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := dumpModel()
		if err != nil {
			return err
		}
		view := m.TeamView(args[0])
		if view == nil {
			return fmt.Errorf("unknown team %q", args[0])
		}
		return printJSON(view)
	},
}

var dumpPersonCmd = &cobra.Command{
	Use:   "dump-person <handle>",
	Short: "Print the expanded record of one person",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := dumpModel()
		if err != nil {
			return err
		}
		view := m.PersonView(args[0])
		if view == nil {
			return fmt.Errorf("unknown person %q", args[0])
		}
		return printJSON(view)
	},
}

var dumpListCmd = &cobra.Command{
	Use:   "dump-list <address>",
	Short: "Print the rendered membership of one mailing list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := dumpModel()
		if err != nil {
			return err
		}
		view := m.ListView(args[0])
		if view == nil {
			return fmt.Errorf("unknown list %q", args[0])
		}
		return printJSON(view)
	},
}

func dumpModel() (*model.Model, error) {
	src, err := resolveSrc(dumpSrc)
	if err != nil {
		return nil, err
	}
	return loadModel(src)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	for _, c := range []*cobra.Command{dumpTeamCmd, dumpPersonCmd, dumpListCmd} {
		c.Flags().StringVar(&dumpSrc, "src", "", "corpus directory (overrides config)")
		rootCmd.AddCommand(c)
	}
}
