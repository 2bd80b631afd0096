package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var embeddedDefaultConfig []byte

//go:embed default_env.example
var embeddedEnvExample []byte

// Load reads the config file, creating the defaults under ~/.listory on first
// run. Relative paths in the file resolve against cwd.
func Load(pathArg, cwd string) (*Config, *Paths, error) {
	paths, err := resolvePaths(pathArg)
	if err != nil {
		return nil, nil, err
	}
	if err := ensureBootstrap(paths); err != nil {
		return nil, nil, err
	}

	raw, err := os.ReadFile(paths.ConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("读取配置文件失败（%s）：%w", paths.ConfigPath, err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("配置文件格式错误（%s）：%w", paths.ConfigPath, err)
	}

	paths.ConfigSource = paths.ConfigPath
	paths.ResolvedCatalog = expandPath(cfg.CatalogFile, paths.HomeDir, cwd)
	if paths.ResolvedCatalog == "" && cfg.CatalogCenter.Enabled {
		paths.ResolvedCatalog = paths.CatalogPath
	}
	return cfg, paths, nil
}

// Parse decodes raw over the built-in defaults.
func Parse(raw []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(embeddedDefaultConfig, cfg); err != nil {
		return nil, fmt.Errorf("内置配置损坏：%w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func resolvePaths(configArg string) (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("读取用户目录失败：%w", err)
	}
	root := filepath.Join(home, ".listory")
	configPath := filepath.Join(root, "config.yaml")
	if strings.TrimSpace(configArg) != "" {
		configPath = expandPath(configArg, home, "")
	}

	return &Paths{
		HomeDir:         home,
		RootDir:         root,
		ConfigPath:      configPath,
		CatalogPath:     filepath.Join(root, "catalog.yaml"),
		CatalogLockPath: filepath.Join(root, "catalog.lock.json"),
		EnvPath:         filepath.Join(root, ".env"),
		EnvExample:      filepath.Join(root, ".env.example"),
	}, nil
}

func ensureBootstrap(paths *Paths) error {
	if err := os.MkdirAll(filepath.Dir(paths.ConfigPath), 0o755); err != nil {
		return fmt.Errorf("创建配置目录失败：%w", err)
	}
	if err := os.MkdirAll(filepath.Dir(paths.EnvExample), 0o755); err != nil {
		return fmt.Errorf("创建配置目录失败：%w", err)
	}
	if err := ensureFile(paths.ConfigPath, embeddedDefaultConfig, 0o644); err != nil {
		return err
	}
	return ensureFile(paths.EnvExample, embeddedEnvExample, 0o644)
}

func ensureFile(path string, data []byte, mode os.FileMode) error {
	if st, err := os.Stat(path); err == nil && !st.IsDir() {
		return nil
	}
	if err := os.WriteFile(path, data, mode); err != nil {
		return fmt.Errorf("写入默认文件失败（%s）：%w", path, err)
	}
	return nil
}

func expandPath(v, home, cwd string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return v
	}
	if strings.HasPrefix(v, "~/") {
		return filepath.Join(home, v[2:])
	}
	if filepath.IsAbs(v) {
		return v
	}
	if strings.TrimSpace(cwd) != "" {
		return filepath.Join(cwd, v)
	}
	return v
}
