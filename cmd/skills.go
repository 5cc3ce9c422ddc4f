package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"docmind/internal/skill"
	"docmind/internal/skill/builtin"
)

var skillsDir string

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "Inspect the skill registry",
}

var skillsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered skills",
	RunE: func(_ *cobra.Command, _ []string) error {
		registry, err := offlineRegistry()
		if err != nil {
			return err
		}
		for _, m := range registry.List() {
			fmt.Printf("%-12s %-10s cost=%d tier=%-10s %s\n", m.ID, m.Category, m.QuotaCost, m.MinimumTier, m.Description)
		}
		return nil
	},
}

var skillsSelectCmd = &cobra.Command{
	Use:   "select <query>",
	Short: "Rank skills against a free-text query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		registry, err := offlineRegistry()
		if err != nil {
			return err
		}
		matches := registry.Select(strings.Join(args, " "))
		if len(matches) == 0 {
			fmt.Println("no matching skill")
			return nil
		}
		for _, m := range matches {
			fmt.Printf("%-12s score=%-3d confidence=%.2f\n", m.Manifest.ID, m.Score, m.Confidence)
		}
		return nil
	},
}

func init() {
	skillsCmd.PersistentFlags().StringVar(&skillsDir, "dir", "", "directory of SKILL.md manifests to load")
	skillsCmd.AddCommand(skillsListCmd)
	skillsCmd.AddCommand(skillsSelectCmd)
}

// offlineRegistry builds a registry with no LLM or ledger attached. Selection
// and listing never reach either.
func offlineRegistry() (*skill.Registry, error) {
	registry := skill.NewRegistry(nil, nil)
	if err := builtin.Register(registry); err != nil {
		return nil, err
	}
	if skillsDir != "" {
		if _, err := registry.RegisterDir(skillsDir); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
