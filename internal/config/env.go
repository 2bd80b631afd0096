package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

func LoadEnvFile(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		return nil, err
	}
	return env, nil
}

// UpsertEnvVar sets key in the .env file at path, creating it when missing.
func UpsertEnvVar(path, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("env key 为空")
	}
	env, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("读取 .env 失败：%w", err)
		}
		env = map[string]string{}
	}
	env[key] = strings.TrimSpace(value)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建 .env 目录失败：%w", err)
	}
	if err := godotenv.Write(env, path); err != nil {
		return fmt.Errorf("写入 .env 失败：%w", err)
	}
	return nil
}

// ResolveAPIKey reads name from the .env file, falling back to the process
// environment.
func ResolveAPIKey(paths *Paths, name string) (string, error) {
	if paths != nil {
		env, err := LoadEnvFile(paths.EnvPath)
		if err == nil {
			if v := strings.TrimSpace(env[name]); v != "" {
				return v, nil
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("读取 %s 失败：%w", paths.EnvPath, err)
		}
	}
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v, nil
	}
	if paths != nil {
		return "", fmt.Errorf("%s 为空。先复制 %s 为 %s 并填写 key，或执行 listory set key <key>", name, paths.EnvExample, paths.EnvPath)
	}
	return "", fmt.Errorf("%s 为空", name)
}
