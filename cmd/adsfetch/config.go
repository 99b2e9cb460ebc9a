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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/viper"
	"github.com/xeipuuv/gojsonschema"
	"github.com/zalando/go-keyring"

	"github.com/adsfetch/adsfetch/internal/log"
	"github.com/adsfetch/adsfetch/pkg/adsapi"
)

const (
	// ServiceName for keyring storage
	ServiceName = "adsfetch"
	// DefaultConfigFileName is the name of the config file
	DefaultConfigFileName = "adsfetch"
	// AdsConfigFileName is the credentials file searched for by default
	AdsConfigFileName = "google-ads"

	defaultAPIVersion = adsapi.DefaultVersion
)

// Config holds all configuration for adsfetch.
// Priority: CLI flags > config file > env vars > defaults; credentials
// additionally fall back to google-ads.yaml, GOOGLE_ADS_* and the keyring.
type Config struct {
	// Ads API credentials and transport selection
	Ads AdsConfig `mapstructure:"ads"`

	// Runner configuration
	Runner RunnerConfig `mapstructure:"runner"`

	// Output selects the default writer
	Output OutputConfig `mapstructure:"output"`

	// Writer option groups
	BQ      BQConfig      `mapstructure:"bq"`
	CSV     CSVConfig     `mapstructure:"csv"`
	JSON    JSONConfig    `mapstructure:"json"`
	XLSX    XLSXConfig    `mapstructure:"xlsx"`
	SQL     SQLConfig     `mapstructure:"sql"`
	Console ConsoleConfig `mapstructure:"console"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// AdsConfig carries the Ads API credentials in google-ads.yaml form.
type AdsConfig struct {
	// ConfigPath points at the credentials file (default: ./google-ads.yaml,
	// then $HOME/google-ads.yaml)
	ConfigPath string `mapstructure:"config_path"`

	// Transport is grpc or rest
	Transport string `mapstructure:"transport"`

	// APIVersion selects the API version for the REST transport
	APIVersion string `mapstructure:"api_version"`

	DeveloperToken  string `mapstructure:"developer_token"`
	ClientID        string `mapstructure:"client_id"`
	ClientSecret    string `mapstructure:"client_secret"`
	RefreshToken    string `mapstructure:"refresh_token"`
	LoginCustomerID string `mapstructure:"login_customer_id"`
	CustomerID      string `mapstructure:"customer_id"`
	JSONKeyFilePath string `mapstructure:"json_key_file_path"`
	Endpoint        string `mapstructure:"endpoint"`
}

// RunnerConfig mirrors the runner options.
type RunnerConfig struct {
	ParallelAccounts  bool `mapstructure:"parallel_accounts"`
	ParallelThreshold int  `mapstructure:"parallel_threshold"`
	SkipConstants     bool `mapstructure:"skip_constants"`
	DumpQuery         bool `mapstructure:"dump_query"`
	MaxRetryCount     int  `mapstructure:"max_retry_count"`
}

// OutputConfig selects the writer fetch uses by default.
type OutputConfig struct {
	Format string `mapstructure:"format"`
}

// BQConfig holds the BigQuery writer options.
type BQConfig struct {
	Project        string `mapstructure:"project"`
	Dataset        string `mapstructure:"dataset"`
	Location       string `mapstructure:"location"`
	TableTemplate  string `mapstructure:"table_template"`
	InsertMethod   string `mapstructure:"insert_method"`
	ArrayHandling  string `mapstructure:"array_handling"`
	ArraySeparator string `mapstructure:"array_separator"`
	NoUnionView    bool   `mapstructure:"no_union_view"`
	DumpSchema     bool   `mapstructure:"dump_schema"`
	DumpData       bool   `mapstructure:"dump_data"`
	OutputPath     string `mapstructure:"output_path"`
}

// CSVConfig holds the CSV writer options.
type CSVConfig struct {
	DestinationFolder string `mapstructure:"destination_folder"`
	FilePerCustomer   bool   `mapstructure:"file_per_customer"`
	ArraySeparator    string `mapstructure:"array_separator"`
}

// JSONConfig holds the JSON writer options.
type JSONConfig struct {
	Format            string `mapstructure:"format"`
	DestinationFolder string `mapstructure:"destination_folder"`
	FilePerCustomer   bool   `mapstructure:"file_per_customer"`
}

// XLSXConfig holds the XLSX writer options.
type XLSXConfig struct {
	DestinationFolder string `mapstructure:"destination_folder"`
	ArraySeparator    string `mapstructure:"array_separator"`
}

// SQLConfig holds the SQL writer options.
type SQLConfig struct {
	ConnectionString string `mapstructure:"connection_string"`
	ArraySeparator   string `mapstructure:"array_separator"`
}

// ConsoleConfig holds the console writer options.
type ConsoleConfig struct {
	PageSize int `mapstructure:"page_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig loads configuration in priority order.
func LoadConfig(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".adsfetch"))
		}
		viper.SetConfigName(DefaultConfigFileName)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file %s: %w", viper.ConfigFileUsed(), err)
		}
		// Config file not found; using defaults + env vars + flags
	}

	viper.SetEnvPrefix("ADSFETCH")
	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := loadAdsCredentials(&config); err != nil {
		return nil, err
	}

	// Non-fatal: keyring might not be available - secrets can come from
	// the credentials file or env instead
	_ = loadSecretsFromKeyring(&config)

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults() {
	viper.SetDefault("ads.transport", "grpc")
	viper.SetDefault("ads.api_version", defaultAPIVersion)

	viper.SetDefault("runner.parallel_accounts", true)
	viper.SetDefault("runner.parallel_threshold", 16)
	viper.SetDefault("runner.max_retry_count", 5)

	viper.SetDefault("output.format", "console")

	viper.SetDefault("bq.location", "us")
	viper.SetDefault("bq.table_template", "{scriptName}")
	viper.SetDefault("bq.insert_method", "load")
	viper.SetDefault("bq.array_handling", "arrays")
	viper.SetDefault("bq.array_separator", "|")

	viper.SetDefault("json.format", "json")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}

// adsCredentialKeys are the google-ads.yaml keys recognized in the
// credentials file and as GOOGLE_ADS_* environment variables.
var adsCredentialKeys = []string{
	"developer_token",
	"client_id",
	"client_secret",
	"refresh_token",
	"login_customer_id",
	"customer_id",
	"json_key_file_path",
	"endpoint",
	"api_version",
}

// loadAdsCredentials merges the google-ads.yaml credentials file and the
// GOOGLE_ADS_* environment into cfg.Ads. Values already set (flags, the
// adsfetch config file, ADSFETCH_* env) win; inside the credentials layer
// the environment overrides the file.
func loadAdsCredentials(cfg *Config) error {
	v := viper.New()
	explicit := cfg.Ads.ConfigPath != ""
	if explicit {
		v.SetConfigFile(cfg.Ads.ConfigPath)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.SetConfigName(AdsConfigFileName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if explicit || !notFound {
			return fmt.Errorf("error reading ads credentials %s: %w", cfg.Ads.ConfigPath, err)
		}
	}

	v.SetEnvPrefix("GOOGLE_ADS")
	for _, key := range adsCredentialKeys {
		_ = v.BindEnv(key)
	}

	var creds AdsConfig
	if err := v.Unmarshal(&creds); err != nil {
		return fmt.Errorf("failed to unmarshal ads credentials: %w", err)
	}

	fillIfEmpty(&cfg.Ads.DeveloperToken, creds.DeveloperToken)
	fillIfEmpty(&cfg.Ads.ClientID, creds.ClientID)
	fillIfEmpty(&cfg.Ads.ClientSecret, creds.ClientSecret)
	fillIfEmpty(&cfg.Ads.RefreshToken, creds.RefreshToken)
	fillIfEmpty(&cfg.Ads.LoginCustomerID, creds.LoginCustomerID)
	fillIfEmpty(&cfg.Ads.CustomerID, creds.CustomerID)
	fillIfEmpty(&cfg.Ads.JSONKeyFilePath, creds.JSONKeyFilePath)
	fillIfEmpty(&cfg.Ads.Endpoint, creds.Endpoint)
	fillIfEmpty(&cfg.Ads.APIVersion, creds.APIVersion)
	return nil
}

func fillIfEmpty(dst *string, val string) {
	if *dst == "" && val != "" {
		*dst = val
	}
}

// SecretMapping defines how to load a secret from keyring into the config.
type SecretMapping struct {
	KeyringKey string
	Setter     func(*Config, string)
	IsSet      func(*Config) bool
}

// GetSecretMappings returns all secret mappings for the application.
func GetSecretMappings() []SecretMapping {
	return []SecretMapping{
		{
			KeyringKey: "developer_token",
			Setter:     func(c *Config, val string) { c.Ads.DeveloperToken = val },
			IsSet:      func(c *Config) bool { return c.Ads.DeveloperToken != "" },
		},
		{
			KeyringKey: "client_id",
			Setter:     func(c *Config, val string) { c.Ads.ClientID = val },
			IsSet:      func(c *Config) bool { return c.Ads.ClientID != "" },
		},
		{
			KeyringKey: "client_secret",
			Setter:     func(c *Config, val string) { c.Ads.ClientSecret = val },
			IsSet:      func(c *Config) bool { return c.Ads.ClientSecret != "" },
		},
		{
			KeyringKey: "refresh_token",
			Setter:     func(c *Config, val string) { c.Ads.RefreshToken = val },
			IsSet:      func(c *Config) bool { return c.Ads.RefreshToken != "" },
		},
	}
}

// loadSecretsFromKeyring fills credentials the other layers left empty.
func loadSecretsFromKeyring(config *Config) error {
	for _, mapping := range GetSecretMappings() {
		if mapping.IsSet(config) {
			continue
		}
		val, err := keyring.Get(ServiceName, mapping.KeyringKey)
		if err != nil {
			continue
		}
		mapping.Setter(config, val)
	}
	return nil
}

// GetSecretFromKeyring retrieves a secret from the system keyring.
func GetSecretFromKeyring(key string) (string, error) {
	return keyring.Get(ServiceName, key)
}

// SaveSecretToKeyring saves a secret to the system keyring.
func SaveSecretToKeyring(key, value string) error {
	return keyring.Set(ServiceName, key, value)
}

// DeleteSecretFromKeyring removes a secret from the system keyring.
func DeleteSecretFromKeyring(key string) error {
	return keyring.Delete(ServiceName, key)
}

// ListAvailableSecretKeys returns all known secret keys that can be stored
// in the keyring.
func ListAvailableSecretKeys() []string {
	mappings := GetSecretMappings()
	keys := make([]string, len(mappings))
	for i, m := range mappings {
		keys[i] = m.KeyringKey
	}
	return keys
}

// credentialSchema is the JSON schema the ads credentials must satisfy:
// a developer token plus either a service-account key file or the full
// installed-app OAuth triple.
var credentialSchema = map[string]any{
	"type":     "object",
	"required": []any{"developer_token"},
	"properties": map[string]any{
		"developer_token":    map[string]any{"type": "string", "minLength": 1},
		"client_id":          map[string]any{"type": "string"},
		"client_secret":      map[string]any{"type": "string"},
		"refresh_token":      map[string]any{"type": "string"},
		"login_customer_id":  map[string]any{"type": "string", "pattern": "^[0-9-]*$"},
		"customer_id":        map[string]any{"type": "string"},
		"json_key_file_path": map[string]any{"type": "string"},
	},
	"anyOf": []any{
		map[string]any{"required": []any{"json_key_file_path"}},
		map[string]any{"required": []any{"client_id", "client_secret", "refresh_token"}},
	},
}

func (a AdsConfig) credentialMap() map[string]any {
	m := make(map[string]any)
	set := func(key, val string) {
		if val != "" {
			m[key] = val
		}
	}
	set("developer_token", a.DeveloperToken)
	set("client_id", a.ClientID)
	set("client_secret", a.ClientSecret)
	set("refresh_token", a.RefreshToken)
	set("login_customer_id", a.LoginCustomerID)
	set("customer_id", a.CustomerID)
	set("json_key_file_path", a.JSONKeyFilePath)
	return m
}

// ValidateAdsCredentials checks the merged credentials against the schema.
func ValidateAdsCredentials(a AdsConfig) error {
	schemaLoader := gojsonschema.NewGoLoader(credentialSchema)
	docLoader := gojsonschema.NewGoLoader(a.credentialMap())

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("credential schema validation failed: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, len(result.Errors()))
		for i, e := range result.Errors() {
			msgs[i] = e.String()
		}
		return fmt.Errorf("invalid credentials: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// adsClient builds the API client the configured transport asks for.
func (c *Config) adsClient(ctx context.Context) (adsapi.Client, error) {
	if err := ValidateAdsCredentials(c.Ads); err != nil {
		return nil, err
	}
	apiCfg := adsapi.Config{
		DeveloperToken:  c.Ads.DeveloperToken,
		ClientID:        c.Ads.ClientID,
		ClientSecret:    c.Ads.ClientSecret,
		RefreshToken:    c.Ads.RefreshToken,
		JSONKeyFilePath: c.Ads.JSONKeyFilePath,
		LoginCustomerID: c.Ads.LoginCustomerID,
		Endpoint:        c.Ads.Endpoint,
		Version:         c.Ads.APIVersion,
		Logger:          log.Named("adsapi"),
	}
	switch c.Ads.Transport {
	case "", "grpc":
		return adsapi.NewGRPCClient(ctx, apiCfg)
	case "rest":
		return adsapi.NewRESTClient(ctx, apiCfg)
	}
	return nil, fmt.Errorf("unknown transport %q (grpc or rest)", c.Ads.Transport)
}

// GenerateExampleConfig returns an example adsfetch.yaml.
func GenerateExampleConfig() string {
	return heredoc.Doc(`
		# adsfetch configuration
		# Credentials live in google-ads.yaml (see 'adsfetch config init');
		# everything here can also be set per run with CLI flags.

		ads:
		  transport: grpc         # grpc or rest
		  # config_path: /path/to/google-ads.yaml

		runner:
		  parallel_accounts: true
		  parallel_threshold: 16
		  max_retry_count: 5
		  # skip_constants: true

		output:
		  format: console         # bq, console, csv, json, xlsx, sqldb, null

		bq:
		  # project: my-project
		  # dataset: ads_reports
		  location: us
		  table_template: "{scriptName}"
		  insert_method: load     # load or insert
		  array_handling: arrays  # arrays or strings
		  array_separator: "|"

		csv:
		  # destination_folder: ./reports
		  # file_per_customer: true

		json:
		  format: json            # json or jsonl

		sql:
		  # connection_string: sqlite://reports.db

		logging:
		  level: info
		  format: text
	`)
}

// GenerateExampleAdsConfig returns an example google-ads.yaml.
func GenerateExampleAdsConfig() string {
	return heredoc.Doc(`
		# Ads API credentials (google-ads.yaml form).
		# Secrets can instead be stored in the OS keyring:
		#   adsfetch config set-secret developer_token
		developer_token: YOUR_DEVELOPER_TOKEN
		client_id: YOUR_CLIENT_ID.apps.googleusercontent.com
		client_secret: YOUR_CLIENT_SECRET
		refresh_token: YOUR_REFRESH_TOKEN
		# login_customer_id: "1234567890"
		# json_key_file_path: /path/to/service-account.json
	`)
}
