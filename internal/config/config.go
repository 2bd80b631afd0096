package config

import "strings"

type Config struct {
	Provider          string                    `yaml:"provider"`
	APIKeyEnv         string                    `yaml:"api_key_env"`
	CatalogFile       string                    `yaml:"catalog_file"`
	CatalogCenter     CatalogCenterConfig       `yaml:"catalog_center"`
	Concurrency       int                       `yaml:"concurrency"`
	MaxRetries        int                       `yaml:"max_retries"`
	RequestTimeoutSec int                       `yaml:"request_timeout_sec"`
	CacheTTLSec       int                       `yaml:"cache_ttl_sec"`
	Output            OutputConfig              `yaml:"output"`
	Defaults          DefaultsConfig            `yaml:"defaults"`
	Providers         map[string]ProviderConfig `yaml:"providers"`
	Server            ServerConfig              `yaml:"server"`
}

type OutputConfig struct {
	Dir    string `yaml:"dir"`
	Format string `yaml:"format"`
}

// DefaultsConfig holds the selectors used when the command line names none.
type DefaultsConfig struct {
	Marketplaces []string `yaml:"marketplaces"`
	Platform     string   `yaml:"platform"`
	BrandTone    string   `yaml:"brand_tone"`
	Occasion     string   `yaml:"occasion"`
}

type ProviderConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	JSONMode    *bool   `yaml:"json_mode"`
}

func (p ProviderConfig) JSONModeEnabled() bool {
	return p.JSONMode == nil || *p.JSONMode
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type CatalogCenterConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Owner      string `yaml:"owner"`
	Repo       string `yaml:"repo"`
	Release    string `yaml:"release"`
	Asset      string `yaml:"asset"`
	TimeoutSec int    `yaml:"timeout_sec"`
	Strict     bool   `yaml:"strict"`
}

type Paths struct {
	HomeDir         string
	RootDir         string
	ConfigPath      string
	CatalogPath     string
	CatalogLockPath string
	EnvPath         string
	EnvExample      string
	ConfigSource    string
	ResolvedCatalog string
}

var builtinProviders = map[string]ProviderConfig{
	"openai":   {BaseURL: "https://api.openai.com/v1", Model: "gpt-4o-mini", Temperature: 0.7},
	"gemini":   {Model: "gemini-2.0-flash", Temperature: 0.7},
	"deepseek": {BaseURL: "https://api.deepseek.com", Model: "deepseek-chat", Temperature: 0.7},
}

// DefaultAPIKeyEnv is the env var holding the key of provider.
func DefaultAPIKeyEnv(provider string) string {
	return strings.ToUpper(strings.TrimSpace(provider)) + "_API_KEY"
}

func (c *Config) applyDefaults() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if strings.TrimSpace(c.APIKeyEnv) == "" {
		c.APIKeyEnv = DefaultAPIKeyEnv(c.Provider)
	}
	if strings.TrimSpace(c.CatalogCenter.Release) == "" {
		c.CatalogCenter.Release = "latest"
	}
	if strings.TrimSpace(c.CatalogCenter.Asset) == "" {
		c.CatalogCenter.Asset = "catalog.yaml"
	}
	if c.CatalogCenter.TimeoutSec <= 0 {
		c.CatalogCenter.TimeoutSec = 20
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RequestTimeoutSec <= 0 {
		c.RequestTimeoutSec = 120
	}
	if c.CacheTTLSec < 0 {
		c.CacheTTLSec = 0
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		c.Output.Dir = "."
	}
	c.Output.Format = strings.ToLower(strings.TrimSpace(c.Output.Format))
	if c.Output.Format == "" {
		c.Output.Format = "markdown"
	}
	if len(c.Defaults.Marketplaces) == 0 {
		c.Defaults.Marketplaces = []string{"us"}
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		c.Server.Addr = ":8080"
	}
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	for name, def := range builtinProviders {
		p := c.Providers[name]
		if strings.TrimSpace(p.BaseURL) == "" {
			p.BaseURL = def.BaseURL
		}
		if strings.TrimSpace(p.Model) == "" {
			p.Model = def.Model
		}
		if p.Temperature <= 0 {
			p.Temperature = def.Temperature
		}
		c.Providers[name] = p
	}
}
