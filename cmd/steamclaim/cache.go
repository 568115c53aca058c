package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"steamclaim/infrastructure/cachefile"
	"steamclaim/infrastructure/logging"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the durable rewards cache",
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the cached tokens and claim params",
	RunE:  runCacheShow,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheShowCmd)
}

func runCacheShow(cmd *cobra.Command, args []string) error {
	store, err := cachefile.Open(viper.GetString("cache"), logging.L())
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to open rewards cache:", err)
		return err
	}

	snapshot := store.Snapshot()
	data, err := yaml.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("render cache: %w", err)
	}

	fmt.Printf("# %s\n", store.Path())
	fmt.Print(string(data))
	return nil
}
