package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"listory/internal/config"
)

func newSetCmd(flags *genFlags) *cobra.Command {
	setCmd := &cobra.Command{
		Use:           "set",
		Short:         "写入本地配置",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	keyCmd := &cobra.Command{
		Use:           "key <api_key>",
		Short:         "保存当前 provider 的 API Key 到 ~/.listory/.env",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			value := strings.TrimSpace(args[0])
			if value == "" {
				return fmt.Errorf("API Key 不能为空")
			}
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("读取当前目录失败：%w", err)
			}
			cfg, paths, err := config.Load(flags.configArg, cwd)
			if err != nil {
				return err
			}
			name := cfg.APIKeyEnv
			if p := strings.TrimSpace(flags.providerArg); p != "" {
				name = config.DefaultAPIKeyEnv(p)
			}
			return config.UpsertEnvVar(paths.EnvPath, name, value)
		},
	}
	setCmd.AddCommand(keyCmd)
	return setCmd
}
