package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"docmind/internal/container"
)

var statsDays int

var quotaCmd = &cobra.Command{
	Use:   "quota <account>",
	Short: "Show an account's allowance and recent usage",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuota,
}

func init() {
	quotaCmd.Flags().IntVar(&statsDays, "days", 30, "usage window in days")
}

func runQuota(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if statsDays <= 0 {
		return fmt.Errorf("--days must be positive, got %d", statsDays)
	}

	ctx := cmd.Context()
	c, err := container.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	snap, err := c.Quota().Snapshot(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Account:  %s (%s)\n", snap.AccountID, snap.Tier)
	fmt.Printf("AI calls: %d / %d, resets %s\n", snap.AIUsed, snap.AITotal, snap.AIResetAt.UTC().Format(time.RFC3339))
	fmt.Printf("Storage:  %d / %d MB\n", snap.StorageUsedMB, snap.StorageTotalMB)

	to := time.Now().UTC()
	stats, err := c.Quota().Stats(ctx, args[0], to.AddDate(0, 0, -statsDays), to)
	if err != nil {
		return err
	}
	fmt.Printf("\nLast %d days: %d requests, %d units, success rate %.0f%%\n",
		statsDays, stats.Total.Requests, stats.Total.QuotaUnits, stats.Total.SuccessRate*100)
	for category, b := range stats.ByCategory {
		fmt.Printf("  %-8s %d requests, %d units\n", category, b.Requests, b.QuotaUnits)
	}
	return nil
}
