package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/jobscope/internal/utils"
	"github.com/sw33tLie/jobscope/pkg/evaluate"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

const (
	LOGO = `	   _       _
	  (_) ___ | |__  ___  ___ ___  _ __   ___
	  | |/ _ \| '_ \/ __|/ __/ _ \| '_ \ / _ \
	  | | (_) | |_) \__ \ (_| (_) | |_) |  __/
	 _/ |\___/|_.__/|___/\___\___/| .__/ \___|
	|__/                          |_|

`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "jobscope",
	Short: "Scores job postings and tells you which ones are worth a proposal.",
	Long: LOGO + `jobscope loads a job listing, fetches each posting's details at a pace the
site tolerates, scores every posting from 0 to 10 and can ask an LLM whether a
posting is worth your time.`,
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
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.jobscope.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("proxy", "", "", "HTTP Proxy (Useful for debugging. Example: http://127.0.0.1:8080)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("dbpath", "", "Path to SQLite DB file (default: ~/.config/jobscope/jobscope.sqlite)")
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
		viper.SetConfigName(".jobscope")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	// Set defaults before a missing config file is written out, so the new
	// file lists every key.
	viper.SetDefault("openrouter.apikey", "")
	viper.SetDefault("openrouter.model", evaluate.DefaultModel)
	viper.SetDefault("openrouter.prompt", "")
	viper.SetDefault("openrouter.title", evaluate.DefaultTitle)
	viper.SetDefault("verdict.positive", evaluate.DefaultTokens.Positive)
	viper.SetDefault("verdict.negative", evaluate.DefaultTokens.Negative)
	viper.SetDefault("fetch.referer", "")
	viper.SetDefault("fetch.cookie", "")
	viper.SetDefault("db.path", "")

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := filepath.Join(home, ".jobscope.yaml")
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		}
	}

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}
