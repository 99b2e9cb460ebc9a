// Copyright 2026 The adsfetch Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/adsfetch/adsfetch/internal/log"
	"github.com/adsfetch/adsfetch/internal/version"
)

var (
	cfgFile string
	config  *Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:     "adsfetch",
	Short:   "adsfetch - declarative report fetcher for the Ads API",
	Long:    `adsfetch runs report scripts against the Ads API across many accounts in parallel and streams the rows into BigQuery, files, databases or the console.`,
	Version: version.Get(),
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.SetHelpTemplate(`{{with (or .Long .Short)}}{{. | trimTrailingWhitespaces}}

{{end}}{{if or .Runnable .HasSubCommands}}{{.UsageString}}{{end}}

Quick Start:
  1. Write your credentials: adsfetch config init
  2. Check a script parses:  adsfetch validate campaigns.sql
  3. Run it:                 adsfetch fetch campaigns.sql -a 123-456-7890

Support:
  GitHub: https://github.com/adsfetch/adsfetch/issues
`)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./adsfetch.yaml)")
	rootCmd.PersistentFlags().String("ads-config", "", "Ads API credentials file (default: ./google-ads.yaml)")
	rootCmd.PersistentFlags().String("api-version", "", "Ads API version (default: "+defaultAPIVersion+")")
	rootCmd.PersistentFlags().String("transport", "grpc", "API transport (grpc, rest)")

	// Logging flags
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")

	// Bind flags to viper
	_ = viper.BindPFlag("ads.config_path", rootCmd.PersistentFlags().Lookup("ads-config"))
	_ = viper.BindPFlag("ads.api_version", rootCmd.PersistentFlags().Lookup("api-version"))
	_ = viper.BindPFlag("ads.transport", rootCmd.PersistentFlags().Lookup("transport"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	var err error
	config, err = LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := log.Setup(config.Logging.Level, config.Logging.Format); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logging: %v\n", err)
		os.Exit(1)
	}
}
