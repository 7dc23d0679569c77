// stationctl manages the global station catalog from the command line.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/omnifm/omnifm-bot/store"
	"github.com/omnifm/omnifm-bot/types"
)

var (
	dataDir string

	addName string
	addURL  string
	addTier string
)

var rootCmd = &cobra.Command{
	Use:           "stationctl",
	Short:         "Manage the OmniFM global station catalog",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func catalog() *store.StationStore {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return store.NewStationStore(filepath.Join(dataDir, "stations.json"), log)
}

var addCmd = &cobra.Command{
	Use:   "add <key>",
	Short: "Add a station to the global catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := addName
		if name == "" {
			name = args[0]
		}
		st, err := catalog().Add(args[0], name, addURL, types.ParseTier(addTier))
		if err != nil {
			return err
		}
		fmt.Printf("added %s (%s)\n", st.Key, st.Name)
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <key>",
	Short: "Remove a station from the global catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		removed, err := catalog().Remove(args[0])
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("no station named %s", args[0])
		}
		fmt.Printf("removed %s\n", args[0])
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the global catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := catalog()
		defaultKey := c.DefaultKey()
		for _, st := range c.All() {
			marker := " "
			if st.Key == defaultKey {
				marker = "*"
			}
			tier := string(st.RequiredTier)
			if tier == "" || st.RequiredTier == types.TierFree {
				tier = "free"
			}
			fmt.Printf("%s %-20s %-10s %s\n", marker, st.Key, tier, st.Name)
		}
		fmt.Printf("quality preset: %s\n", c.QualityPreset())
		if keys := c.FallbackKeys(); len(keys) > 0 {
			fmt.Printf("fallback chain: %v\n", keys)
		}
		return nil
	},
}

var setDefaultCmd = &cobra.Command{
	Use:   "set-default <key>",
	Short: "Set the default station",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := catalog().SetDefault(args[0]); err != nil {
			return err
		}
		fmt.Printf("default station: %s\n", args[0])
		return nil
	},
}

var setFallbackCmd = &cobra.Command{
	Use:   "set-fallback <key>...",
	Short: "Set the ordered fallback chain",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := catalog().SetFallbackChain(args); err != nil {
			return err
		}
		fmt.Printf("fallback chain: %v\n", args)
		return nil
	},
}

var setQualityCmd = &cobra.Command{
	Use:   "set-quality <low|medium|high|custom>",
	Short: "Set the transcode quality preset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := catalog().SetQualityPreset(args[0]); err != nil {
			return err
		}
		fmt.Printf("quality preset: %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "data", "directory holding the JSON state files")

	addCmd.Flags().StringVar(&addName, "name", "", "display name (defaults to the key)")
	addCmd.Flags().StringVar(&addURL, "url", "", "http(s) stream URL")
	addCmd.Flags().StringVar(&addTier, "tier", "free", "minimum plan required to play this station")
	_ = addCmd.MarkFlagRequired("url")

	rootCmd.AddCommand(addCmd, removeCmd, listCmd, setDefaultCmd, setFallbackCmd, setQualityCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
