package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"listory/internal/config"
)

var (
	loadConfigForUpdate  = config.Load
	syncCatalogForUpdate = func(ctx context.Context, cfg *config.Config, paths *config.Paths) (config.CatalogSyncResult, error) {
		return config.SyncCatalogFromCenter(ctx, cfg, paths, nil)
	}
)

func newUpdateCmd(stdout io.Writer, flags *genFlags) *cobra.Command {
	updateCmd := &cobra.Command{
		Use:           "update",
		Short:         "更新本地数据",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	catalogCmd := &cobra.Command{
		Use:           "catalog",
		Short:         "清除本地目录缓存并从目录中心拉取最新版本",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("读取当前目录失败：%w", err)
			}
			cfg, paths, err := loadConfigForUpdate(flags.configArg, cwd)
			if err != nil {
				return err
			}
			cfg.CatalogCenter.Enabled = true
			cfg.CatalogCenter.Release = "latest"
			cfg.CatalogCenter.Strict = true
			for _, p := range []string{paths.CatalogPath, paths.CatalogLockPath} {
				if p == "" {
					continue
				}
				if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("清除目录缓存失败：%w", err)
				}
			}
			res, err := syncCatalogForUpdate(cmd.Context(), cfg, paths)
			if err != nil {
				return fmt.Errorf("更新目录失败：%w", err)
			}
			fmt.Fprintln(stdout, res.Message)
			return nil
		},
	}
	updateCmd.AddCommand(catalogCmd)
	return updateCmd
}
