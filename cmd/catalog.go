package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"listory/internal/catalog"
	"listory/internal/config"
)

func newCatalogCmd(stdout io.Writer, flags *genFlags) *cobra.Command {
	return &cobra.Command{
		Use:           "catalog",
		Short:         "列出可用的站点、平台、品牌语气和节日",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("读取当前目录失败：%w", err)
			}
			_, paths, err := config.Load(flags.configArg, cwd)
			if err != nil {
				return err
			}
			store, err := catalog.Load(paths.ResolvedCatalog)
			if err != nil {
				return err
			}
			return printCatalog(stdout, store)
		},
	}
}

func printCatalog(w io.Writer, store *catalog.Store) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "站点\t名称\t语言\t货币")
	for _, code := range store.MarketplaceCodes() {
		m, err := store.Marketplace(code)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Code, m.Name, m.Language, m.Currency)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n平台：%s\n", strings.Join(store.PlatformNames(), ", "))
	fmt.Fprintf(w, "品牌语气：%s\n", strings.Join(store.BrandToneNames(), ", "))
	fmt.Fprintf(w, "节日：%s\n", strings.Join(store.OccasionKeys(), ", "))
	return nil
}
