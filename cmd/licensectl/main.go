// licensectl manages OmniFM license records from the command line.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/omnifm/omnifm-bot/internal/pricing"
	"github.com/omnifm/omnifm-bot/store"
	"github.com/omnifm/omnifm-bot/types"
)

var (
	dataDir string

	addTier        string
	addMonths      int
	addActivatedBy string
	addNote        string

	upgradeTier string
	priceTier   string
	priceMonths int
)

var rootCmd = &cobra.Command{
	Use:           "licensectl",
	Short:         "Manage OmniFM guild licenses",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func licenses() *store.LicenseStore {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return store.NewLicenseStore(filepath.Join(dataDir, "licenses.json"), log)
}

var addCmd = &cobra.Command{
	Use:   "add <guild-id>",
	Short: "Create or extend a license",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		guildID := args[0]
		if !types.IsSnowflake(guildID) {
			return fmt.Errorf("%q is not a valid guild id", guildID)
		}
		lic, err := licenses().AddOrRenew(guildID, types.ParseTier(addTier), addMonths, addActivatedBy, addNote)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s until %s (%d months, %s)\n",
			guildID, lic.Tier, lic.ExpiresAt.UTC().Format("2006-01-02"), addMonths,
			pricing.FormatEUR(pricing.Price(lic.Tier, addMonths)))
		return nil
	},
}

var upgradeCmd = &cobra.Command{
	Use:   "upgrade <guild-id>",
	Short: "Upgrade an active license to a higher plan, keeping its expiry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		guildID := args[0]
		ls := licenses()
		target := types.ParseTier(upgradeTier)

		quote := ls.CalculateUpgradePrice(guildID, target)
		lic, err := ls.Upgrade(guildID, target)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s -> %s, expires %s\n",
			guildID, lic.UpgradedFrom, lic.Tier, lic.ExpiresAt.UTC().Format("2006-01-02"))
		if quote != nil {
			fmt.Printf("upgrade price: %s (%d days remaining)\n",
				pricing.FormatEUR(quote.UpgradeCost), quote.DaysLeft)
		}
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <guild-id>",
	Short: "Delete a license record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !licenses().Remove(args[0]) {
			return fmt.Errorf("no license for %s", args[0])
		}
		fmt.Printf("%s: license removed\n", args[0])
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all license records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		all := licenses().List()
		if len(all) == 0 {
			fmt.Println("no licenses")
			return nil
		}

		ids := make([]string, 0, len(all))
		for id := range all {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			lic := all[id]
			fmt.Printf("%s  %-8s  expires %s  by %s\n",
				id, lic.Tier, lic.ExpiresAt.UTC().Format("2006-01-02"), lic.ActivatedBy)
		}
		return nil
	},
}

var priceCmd = &cobra.Command{
	Use:   "price",
	Short: "Show plan pricing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if priceTier == "" {
			fmt.Println(pricing.Overview())
			return nil
		}
		tier := types.ParseTier(priceTier)
		fmt.Printf("%s, %d months: %s\n", tier, priceMonths, pricing.FormatEUR(pricing.Price(tier, priceMonths)))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "data", "directory holding the JSON state files")

	addCmd.Flags().StringVar(&addTier, "tier", "pro", "plan to grant (pro or ultimate)")
	addCmd.Flags().IntVar(&addMonths, "months", 1, "duration in months")
	addCmd.Flags().StringVar(&addActivatedBy, "activated-by", "licensectl", "who activated this license")
	addCmd.Flags().StringVar(&addNote, "note", "", "free-form note stored on the record")

	upgradeCmd.Flags().StringVar(&upgradeTier, "tier", "ultimate", "target plan")

	priceCmd.Flags().StringVar(&priceTier, "tier", "", "plan to price (empty prints the overview)")
	priceCmd.Flags().IntVar(&priceMonths, "months", 1, "duration in months")

	rootCmd.AddCommand(addCmd, upgradeCmd, removeCmd, listCmd, priceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
