package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "steamclaim",
	Short: "Automated collection of free points-shop items and free game licenses",
	Long: `steamclaim walks a list of storefront URLs for every configured account:
- points-shop pages are crawled once to learn redemption tokens, which are
  cached and replayed through the direct loyalty API on later runs
- product pages are taken through age gates and ownership checks to a
  free license grant
- everything learned is kept in a human-readable cache file`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.steamclaim.yaml)")
	rootCmd.PersistentFlags().String("cache", "rewards_cache.yaml", "path of the durable rewards cache")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	_ = viper.BindPFlag("cache", rootCmd.PersistentFlags().Lookup("cache"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".steamclaim")
	}

	viper.SetEnvPrefix("STEAMCLAIM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// Missing config file is fine; flags and env cover everything.
	_ = viper.ReadInConfig()
}
