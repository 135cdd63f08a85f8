package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/sw33tLie/shopsight/internal/utils"
)

var cfgFile string

const (
	LOGO = `	     _                     _       _     _
	 ___| |__   ___  _ __  ___(_) __ _| |__ | |_
	/ __| '_ \ / _ \| '_ \/ __| |/ _` + "`" + ` | '_ \| __|
	\__ \ | | | (_) | |_) \__ \ | (_| | | | | |_
	|___/_| |_|\___/| .__/|___/_|\__, |_| |_|\__|
	                |_|          |___/

`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "shopsight",
	Short: "Structured insight extraction for platform-built storefronts.",
	Long: LOGO + `shopsight fetches a store's public pages and catalog feed and distills them
into one structured record: products, collections, policies, FAQs, contact
channels, and (optionally) likely competitors.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.shopsight.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("proxy", "", "", "HTTP Proxy (Useful for debugging. Example: http://127.0.0.1:8080)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".shopsight")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := home + "/.shopsight.yaml"
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		}
	}

	// Set default values for all keys
	viper.SetDefault("extract.timeout_seconds", 60)
	viper.SetDefault("extract.retries", 2)
	viper.SetDefault("extract.concurrency", 5)
	viper.SetDefault("extract.max_catalog_pages", 10)
	viper.SetDefault("extract.catalog_page_size", 250)
	viper.SetDefault("extract.default_region", "US")
	viper.SetDefault("extract.user_agent", "")
	viper.SetDefault("server.username", "")
	viper.SetDefault("server.password", "")

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}
