package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/team-sync/internal/config"
	"github.com/ziadkadry99/team-sync/internal/discord"
	"github.com/ziadkadry99/team-sync/internal/github"
	"github.com/ziadkadry99/team-sync/internal/mailgun"
	"github.com/ziadkadry99/team-sync/internal/model"
	"github.com/ziadkadry99/team-sync/internal/reconcile"
	"github.com/ziadkadry99/team-sync/internal/zulip"
)

var (
	syncSrc      string
	syncServices []string
	syncYes      bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile remote services with the corpus",
}

var syncPlanCmd = &cobra.Command{
	Use:   "print-plan",
	Short: "Print the operations a sync would apply, without applying them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(false)
	},
}

var syncApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply the plan to the remote services",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(true)
	},
}

func buildAdapters(cfg *config.Config, m *model.Model, services []config.ServiceName) ([]reconcile.Adapter, error) {
	var out []reconcile.Adapter
	for _, svc := range services {
		switch svc {
		case config.ServiceGitHub:
			out = append(out, github.NewAdapter(log))
		case config.ServiceMailgun:
			out = append(out, mailgun.NewAdapter(log, cfg.Mailgun.Domains))
		case config.ServiceZulip:
			if cfg.Zulip.BaseURL == "" {
				return nil, setupErrf("zulip.base_url must be configured to sync zulip")
			}
			out = append(out, zulip.NewAdapter(log, cfg.Zulip.BaseURL))
		case config.ServiceDiscord:
			if cfg.Discord.GuildID == "" && len(m.DiscordRoles()) > 0 {
				return nil, setupErrf("discord.guild_id must be configured to sync discord roles")
			}
			out = append(out, discord.NewAdapter(log, cfg.Discord.GuildID))
		}
	}
	return out, nil
}

func runSync(apply bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	src := syncSrc
	if src == "" {
		src = cfg.Src
	}
	m, err := loadModel(src)
	if err != nil {
		return err
	}
	services, err := config.ParseServices(syncServices)
	if err != nil {
		return &setupError{err: err}
	}
	adapters, err := buildAdapters(cfg, m, services)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var plans []*reconcile.Plan
	total := 0
	for _, adapter := range adapters {
		plan, err := adapter.Plan(ctx, m)
		if err != nil {
			return fmt.Errorf("planning %s: %w", adapter.Name(), err)
		}
		plans = append(plans, plan)
		total += len(plan.Ops)
	}

	if !apply {
		for _, plan := range plans {
			reconcile.PrintPlan(os.Stdout, plan)
		}
		return syncOutcome(plans, nil)
	}

	if total == 0 {
		fmt.Println("nothing to apply")
		return syncOutcome(plans, nil)
	}
	if !syncYes {
		prompt := promptui.Prompt{
			Label:     fmt.Sprintf("Apply %d operation(s) across %d service(s)", total, len(plans)),
			IsConfirm: true,
		}
		if _, err := prompt.Run(); err != nil {
			fmt.Println("aborted")
			return nil
		}
	}

	runner := &reconcile.Runner{Log: log, Progress: !verbose}
	var results []*reconcile.Result
	for _, plan := range plans {
		res := runner.Apply(ctx, plan)
		results = append(results, res)
		fmt.Print(res.Summary())
	}
	return syncOutcome(plans, results)
}

// syncOutcome maps the run onto the documented exit codes: missing
// credentials are a setup error, anything fatal or blocked is a sync
// failure.
func syncOutcome(plans []*reconcile.Plan, results []*reconcile.Result) error {
	failed := false
	for _, plan := range plans {
		for _, s := range plan.Skipped {
			var cred *reconcile.CredentialError
			if errors.As(s.Err, &cred) {
				return &setupError{err: s.Err}
			}
			failed = true
		}
	}
	for _, res := range results {
		if res.Failed() {
			failed = true
		}
	}
	if failed {
		return errSyncFailed
	}
	return nil
}

func init() {
	for _, c := range []*cobra.Command{syncPlanCmd, syncApplyCmd} {
		c.Flags().StringVar(&syncSrc, "src", "", "corpus directory (overrides config)")
		c.Flags().StringSliceVar(&syncServices, "services", nil, "services to sync (default all)")
	}
	syncApplyCmd.Flags().BoolVarP(&syncYes, "yes", "y", false, "skip the confirmation prompt")
	syncCmd.AddCommand(syncPlanCmd)
	syncCmd.AddCommand(syncApplyCmd)
	rootCmd.AddCommand(syncCmd)
}
