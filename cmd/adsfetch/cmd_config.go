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
	"golang.org/x/term"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage adsfetch configuration",
	Long:  `Manage configuration files and credential secrets for adsfetch.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an example credentials file",
	Long:  `Write an example google-ads.yaml credentials file into the current directory.`,
	Run:   runConfigInit,
}

var configExampleCmd = &cobra.Command{
	Use:   "example",
	Short: "Print an example adsfetch.yaml",
	Long:  `Print an example adsfetch.yaml configuration to stdout.`,
	Run:   runConfigExample,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the merged credentials",
	Long: `Validate the Ads API credentials merged from the credentials file,
environment and keyring against the expected schema.`,
	Run: runConfigValidate,
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret [key-name]",
	Short: "Save a credential secret to the system keyring",
	Long: `Save a credential secret to the system keyring securely.

The secret will be stored in your system's secure credential storage
(Keychain on macOS, Credential Manager on Windows, Secret Service on Linux)
and used whenever the credentials file leaves it empty.`,
	Args: cobra.ExactArgs(1),
	Run:  runConfigSetSecret,
}

var configGetSecretCmd = &cobra.Command{
	Use:   "get-secret [key-name]",
	Short: "Retrieve a credential secret from the system keyring",
	Long:  `Retrieve a credential secret from the system keyring (shown masked, for verification).`,
	Args:  cobra.ExactArgs(1),
	Run:   runConfigGetSecret,
}

var configDeleteSecretCmd = &cobra.Command{
	Use:   "delete-secret [key-name]",
	Short: "Delete a credential secret from the system keyring",
	Long:  `Remove a credential secret from the system keyring.`,
	Args:  cobra.ExactArgs(1),
	Run:   runConfigDeleteSecret,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configExampleCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configSetSecretCmd)
	configCmd.AddCommand(configGetSecretCmd)
	configCmd.AddCommand(configDeleteSecretCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) {
	configPath := "google-ads.yaml"

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Credentials file already exists: %s\n", configPath)
		fmt.Print("Overwrite? (y/N): ")
		var response string
		_, _ = fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return
		}
	}

	if err := os.WriteFile(configPath, []byte(GenerateExampleAdsConfig()), 0600); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing credentials file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Credentials file created: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Fill in your developer token and OAuth credentials, or store")
	fmt.Println("   the secrets in the keyring instead:")
	fmt.Println("   adsfetch config set-secret developer_token")
	fmt.Println("   adsfetch config set-secret refresh_token")
	fmt.Println("2. Check the result:")
	fmt.Println("   adsfetch config validate")
	fmt.Println("3. Run a script:")
	fmt.Println("   adsfetch fetch campaigns.sql -a <account-id>")
}

func runConfigExample(cmd *cobra.Command, args []string) {
	fmt.Print(GenerateExampleConfig())
}

func runConfigValidate(cmd *cobra.Command, args []string) {
	if err := ValidateAdsCredentials(config.Ads); err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✓ Credentials are complete")
	if config.Ads.JSONKeyFilePath != "" {
		fmt.Printf("  auth: service account key %s\n", config.Ads.JSONKeyFilePath)
	} else {
		fmt.Println("  auth: OAuth refresh token")
	}
	if config.Ads.LoginCustomerID != "" {
		fmt.Printf("  login customer: %s\n", config.Ads.LoginCustomerID)
	}
}

func runConfigSetSecret(cmd *cobra.Command, args []string) {
	keyName := args[0]

	availableKeys := ListAvailableSecretKeys()
	validKeys := make(map[string]bool)
	for _, k := range availableKeys {
		validKeys[k] = true
	}

	if !validKeys[keyName] {
		fmt.Fprintf(os.Stderr, "Invalid key name: %s\n", keyName)
		fmt.Fprintf(os.Stderr, "Available keys:\n")
		for _, k := range availableKeys {
			fmt.Fprintf(os.Stderr, "  - %s\n", k)
		}
		os.Exit(1)
	}

	// Read secret from stdin (without echo)
	fmt.Printf("Enter %s (input hidden): ", keyName)
	secretBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}

	secret := string(secretBytes)
	if secret == "" {
		fmt.Fprintf(os.Stderr, "Secret cannot be empty\n")
		os.Exit(1)
	}

	if err := SaveSecretToKeyring(keyName, secret); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving to keyring: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Saved %s to system keyring\n", keyName)
}

func runConfigGetSecret(cmd *cobra.Command, args []string) {
	keyName := args[0]

	secret, err := GetSecretFromKeyring(keyName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error retrieving secret: %v\n", err)
		fmt.Fprintf(os.Stderr, "Secret not found in keyring. Set it with: adsfetch config set-secret %s\n", keyName)
		os.Exit(1)
	}

	fmt.Printf("%s: %s\n", keyName, maskSecret(secret))
}

func runConfigDeleteSecret(cmd *cobra.Command, args []string) {
	keyName := args[0]

	if err := DeleteSecretFromKeyring(keyName); err != nil {
		fmt.Fprintf(os.Stderr, "Error deleting secret: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Deleted %s from system keyring\n", keyName)
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
