package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reza/hivemind/internal/config"
	"github.com/reza/hivemind/pkg/swarm"
)

var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "Show the agent tiers and current configuration",
	RunE:  runRoles,
}

func init() {
	rootCmd.AddCommand(rolesCmd)
}

func runRoles(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	for _, tier := range swarm.Tiers() {
		marker := " "
		if tier == cfg.Swarm.Tier {
			marker = "*"
		}
		fmt.Printf("%s %s\n", marker, tier)
		for _, role := range swarm.TierRoles(tier) {
			fmt.Printf("    %-11s %s\n", role.Name, role.Focus)
		}
	}

	fmt.Println()
	fmt.Printf("provider: %s  model: %s  keys: %d\n", cfg.API.Provider, cfg.API.Model, len(cfg.API.Keys))
	fmt.Printf("synthesis: %s  safety: %s\n", cfg.Synthesis.Backend, cfg.Tools.SafetyLevel)
	return nil
}
