package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// GoogleCredentials represents the structure of Google OAuth credentials JSON file.
type GoogleCredentials struct {
	Installed struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	} `json:"installed"`
	Web struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	} `json:"web"`
}

// LoadGoogleCredentials loads Google OAuth credentials from a JSON file.
func LoadGoogleCredentials(path string) (clientID, clientSecret string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds GoogleCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return "", "", fmt.Errorf("failed to parse credentials file: %w", err)
	}

	// Try "installed" first (for desktop apps), then "web"
	if creds.Installed.ClientID != "" {
		return creds.Installed.ClientID, creds.Installed.ClientSecret, nil
	}
	if creds.Web.ClientID != "" {
		return creds.Web.ClientID, creds.Web.ClientSecret, nil
	}

	return "", "", fmt.Errorf("no client_id found in credentials file (expected 'installed' or 'web' section)")
}

// Config holds the configuration for the Moodle calendar sync tool.
type Config struct {
	MoodleBaseURL         string `json:"moodle_base_url,omitempty"`
	MoodleSessionCookie   string `json:"moodle_session_cookie,omitempty"`
	GoogleCredentialsPath string `json:"google_credentials_path,omitempty"`
	TokenPath             string `json:"token_path,omitempty"`
	TimeZone              string `json:"timezone,omitempty"`
	LogLevel              string `json:"log_level,omitempty"`
}

// LoadConfigFromFile loads configuration from a JSON file.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// Flags carries the command-line overrides for LoadConfig.
type Flags struct {
	MoodleBaseURL         string
	MoodleSessionCookie   string
	GoogleCredentialsPath string
	TokenPath             string
	TimeZone              string
	LogLevel              string
}

// LoadConfig loads configuration with the following precedence (highest to lowest):
// 1. Command-line flags
// 2. Environment variables
// 3. Config file
// 4. Defaults
// Returns an error if any required value is missing.
func LoadConfig(configFile string, flags Flags) (*Config, error) {
	var config Config

	// Step 1: Load from config file if provided
	if configFile != "" {
		fileConfig, err := LoadConfigFromFile(configFile)
		if err != nil {
			return nil, err
		}
		config = *fileConfig
	}

	// Step 2: Override with environment variables
	if baseURL := os.Getenv("MOODLE_BASE_URL"); baseURL != "" {
		config.MoodleBaseURL = baseURL
	}
	if cookie := os.Getenv("MOODLE_SESSION_COOKIE"); cookie != "" {
		config.MoodleSessionCookie = cookie
	}
	if credsPath := os.Getenv("GOOGLE_CREDENTIALS_PATH"); credsPath != "" {
		config.GoogleCredentialsPath = credsPath
	}
	if tokenPath := os.Getenv("TOKEN_PATH"); tokenPath != "" {
		config.TokenPath = tokenPath
	}
	if tz := os.Getenv("SYNC_TIMEZONE"); tz != "" {
		config.TimeZone = tz
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}

	// Step 3: Override with command-line flags (highest priority)
	if flags.MoodleBaseURL != "" {
		config.MoodleBaseURL = flags.MoodleBaseURL
	}
	if flags.MoodleSessionCookie != "" {
		config.MoodleSessionCookie = flags.MoodleSessionCookie
	}
	if flags.GoogleCredentialsPath != "" {
		config.GoogleCredentialsPath = flags.GoogleCredentialsPath
	}
	if flags.TokenPath != "" {
		config.TokenPath = flags.TokenPath
	}
	if flags.TimeZone != "" {
		config.TimeZone = flags.TimeZone
	}
	if flags.LogLevel != "" {
		config.LogLevel = flags.LogLevel
	}

	// Step 4: Apply defaults and validate required fields
	if config.MoodleBaseURL == "" {
		config.MoodleBaseURL = "https://moodle.utfpr.edu.br"
	}
	if config.TokenPath == "" {
		config.TokenPath = "moodlesync_token.json"
	}
	if config.TimeZone == "" {
		config.TimeZone = "America/Sao_Paulo"
	}

	if config.MoodleSessionCookie == "" {
		return nil, fmt.Errorf("moodle_session_cookie must be provided via --moodle-session-cookie flag, MOODLE_SESSION_COOKIE environment variable, or config file")
	}
	if config.GoogleCredentialsPath == "" {
		return nil, fmt.Errorf("google_credentials_path must be provided via --google-credentials-path flag, GOOGLE_CREDENTIALS_PATH environment variable, or config file")
	}

	return &config, nil
}
