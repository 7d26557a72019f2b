package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig                 `json:"app" yaml:"app"`
	Providers map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Browser   BrowserConfig             `json:"browser" yaml:"browser"`
	Shopping  ShoppingConfig            `json:"shopping" yaml:"shopping"`
	Memory    MemoryConfig              `json:"memory" yaml:"memory"`
	Gateways  map[string]GatewayConfig  `json:"gateways" yaml:"gateways"`
}

type AppConfig struct {
	Name       string `json:"name" yaml:"name"`
	PromptsDir string `json:"prompts_dir" yaml:"prompts_dir"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	Model   string `json:"model" yaml:"model"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

type BrowserConfig struct {
	SessionFile      string `json:"session_file" yaml:"session_file"`
	StorefrontURL    string `json:"storefront_url" yaml:"storefront_url"`
	CartURL          string `json:"cart_url" yaml:"cart_url"`
	LoginWaitSeconds int    `json:"login_wait_seconds" yaml:"login_wait_seconds"`
}

type ShoppingConfig struct {
	ResultsTimeoutSeconds int `json:"results_timeout_seconds" yaml:"results_timeout_seconds"`
	SettleDelaySeconds    int `json:"settle_delay_seconds" yaml:"settle_delay_seconds"`
	MaxOptions            int `json:"max_options" yaml:"max_options"`
}

type MemoryConfig struct {
	Type string `json:"type" yaml:"type"`
	Path string `json:"path" yaml:"path"`
}

type GatewayConfig struct {
	Token   string `json:"token" yaml:"token"`
	ChatID  string `json:"chat_id" yaml:"chat_id"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// LoadConfig reads a JSON or YAML config file, chosen by extension.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %v", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file: %v", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "cartpilot"
	}
	if c.App.PromptsDir == "" {
		c.App.PromptsDir = "./prompts"
	}
	if c.Browser.SessionFile == "" {
		c.Browser.SessionFile = "session.json"
	}
	if c.Browser.StorefrontURL == "" {
		c.Browser.StorefrontURL = "https://www.amazon.com/alm/storefront?almBrandId=QW1hem9uIEZyZXNo"
	}
	if c.Browser.CartURL == "" {
		c.Browser.CartURL = "https://www.amazon.com/gp/cart/view.html"
	}
	if c.Browser.LoginWaitSeconds <= 0 {
		c.Browser.LoginWaitSeconds = 60
	}
	if c.Shopping.ResultsTimeoutSeconds <= 0 {
		c.Shopping.ResultsTimeoutSeconds = 4
	}
	if c.Shopping.SettleDelaySeconds <= 0 {
		c.Shopping.SettleDelaySeconds = 2
	}
	if c.Shopping.MaxOptions <= 0 {
		c.Shopping.MaxOptions = 3
	}
	if c.Memory.Path == "" {
		c.Memory.Path = "cartpilot.db"
	}
}

// GetDefaultProvider returns the first enabled provider
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	for name, p := range c.Providers {
		if p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetNotifier returns the first enabled notification gateway, if any.
func (c *Config) GetNotifier() (string, GatewayConfig, bool) {
	for _, name := range []string{"telegram", "discord"} {
		if g, ok := c.Gateways[name]; ok && g.Enabled {
			return name, g, true
		}
	}
	return "", GatewayConfig{}, false
}
