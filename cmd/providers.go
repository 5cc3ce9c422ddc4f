package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"docmind/internal/provider"
	providerfactory "docmind/internal/provider/factory"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Probe configured LLM providers in failover order",
	RunE:  runProviders,
}

func runProviders(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	manager := provider.NewManager()
	if err := providerfactory.RegisterConfiguredProviders(cfg, manager); err != nil {
		return err
	}

	for i, st := range manager.Providers(cmd.Context()) {
		mark := "✗"
		if st.Available {
			mark = "✓"
		}
		fmt.Printf("%d. %-20s %-24s %s\n", i+1, st.ID, st.DisplayName, mark)
	}
	return nil
}
