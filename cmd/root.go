package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"listory/internal/app"
)

type genFlags struct {
	configArg      string
	outputDirArg   string
	formatArg      string
	marketplaceArg []string
	platformArg    string
	toneArg        string
	occasionArg    string
	concurrencyArg int
	maxRetriesArg  int
	providerArg    string
	logFileArg     string
	verboseArg     bool
}

// valueFlags take a separate argument, so the token after them is never an input path.
var valueFlags = map[string]bool{
	"--config": true, "--out": true, "-o": true, "--format": true,
	"--marketplace": true, "-m": true, "--platform": true, "--tone": true, "--occasion": true,
	"--concurrency": true, "--max-retries": true, "--provider": true, "--log-file": true,
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root := NewRootCmd(os.Stdout, os.Stderr)
	root.SetArgs(normalizeArgs(os.Args[1:]))
	return root.ExecuteContext(ctx)
}

func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	flags := &genFlags{}
	showVersion := false

	root := &cobra.Command{
		Use:           "listory [file_or_dir ...]",
		Short:         "根据产品资料为各站点批量生成 listing",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runGen(stdout, stderr, flags, &showVersion),
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.CompletionOptions.HiddenDefaultCmd = true
	bindGenFlags(root, flags)
	root.PersistentFlags().BoolVarP(&showVersion, "version", "v", false, "显示版本信息")

	genCmd := &cobra.Command{
		Use:           "gen [file_or_dir ...]",
		Short:         "生成 listing 文件",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runGen(stdout, stderr, flags, &showVersion),
	}
	root.AddCommand(genCmd)
	root.AddCommand(newServeCmd(stdout, flags))
	root.AddCommand(newCatalogCmd(stdout, flags))
	root.AddCommand(newSetCmd(flags))
	root.AddCommand(newUpdateCmd(stdout, flags))

	versionCmd := &cobra.Command{
		Use:           "version",
		Short:         "显示版本信息",
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(stdout)
		},
	}
	root.AddCommand(versionCmd)
	return root
}

func bindGenFlags(cmd *cobra.Command, flags *genFlags) {
	cmd.PersistentFlags().StringVar(&flags.configArg, "config", "", "配置文件路径，默认 ~/.listory/config.yaml")
	cmd.PersistentFlags().StringVarP(&flags.outputDirArg, "out", "o", "", "输出目录，默认当前目录")
	cmd.PersistentFlags().StringVar(&flags.formatArg, "format", "", "输出格式：markdown、html 或 json")
	cmd.PersistentFlags().StringSliceVarP(&flags.marketplaceArg, "marketplace", "m", nil, "目标站点，逗号分隔，如 de,fr")
	cmd.PersistentFlags().StringVar(&flags.platformArg, "platform", "", "电商平台：amazon、walmart、etsy、shopify")
	cmd.PersistentFlags().StringVar(&flags.toneArg, "tone", "", "品牌语气，如 professional、luxury")
	cmd.PersistentFlags().StringVar(&flags.occasionArg, "occasion", "", "节日场景，如 christmas；none 表示不指定")
	cmd.PersistentFlags().IntVar(&flags.concurrencyArg, "concurrency", 0, "并发生成数量")
	cmd.PersistentFlags().IntVar(&flags.maxRetriesArg, "max-retries", 0, "最大重试次数")
	cmd.PersistentFlags().StringVar(&flags.providerArg, "provider", "", "覆盖配置中的 provider：openai、gemini、deepseek")
	cmd.PersistentFlags().StringVar(&flags.logFileArg, "log-file", "", "NDJSON 日志文件路径")
	cmd.PersistentFlags().BoolVar(&flags.verboseArg, "verbose", false, "输出详细 NDJSON（机器友好）")
}

func (f *genFlags) options(stdout, stderr io.Writer, cwd string) app.Options {
	return app.Options{
		ConfigPath:   f.configArg,
		OutputDir:    f.outputDirArg,
		Format:       f.formatArg,
		Marketplaces: f.marketplaceArg,
		Platform:     f.platformArg,
		BrandTone:    f.toneArg,
		Occasion:     f.occasionArg,
		Concurrency:  f.concurrencyArg,
		MaxRetries:   f.maxRetriesArg,
		Provider:     f.providerArg,
		LogFile:      f.logFileArg,
		Verbose:      f.verboseArg,
		CWD:          cwd,
		Stdout:       stdout,
		Stderr:       stderr,
	}
}

func runGen(stdout, stderr io.Writer, flags *genFlags, showVersion *bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if showVersion != nil && *showVersion {
			printVersion(stdout)
			return nil
		}

		if len(args) == 0 {
			_ = cmd.Help()
			return nil
		}

		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("读取当前目录失败：%w", err)
		}

		start := time.Now()
		opts := flags.options(stdout, stderr, cwd)
		opts.Inputs = args
		res, err := app.Run(cmd.Context(), opts)
		if err != nil {
			return err
		}

		finalLine := fmt.Sprintf(
			"任务完成：成功 %d，失败 %d，总耗时 %s",
			res.Succeeded,
			res.Failed,
			formatDurationMS(time.Since(start).Milliseconds()),
		)
		if res.Failed > 0 {
			return fmt.Errorf("%s", finalLine)
		}
		if !flags.verboseArg {
			fmt.Fprintln(stdout, finalLine)
			for _, f := range res.Files {
				fmt.Fprintln(stdout, f)
			}
		}
		return nil
	}
}

func formatDurationMS(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60_000 {
		return fmt.Sprintf("%.2fs", float64(ms)/1000.0)
	}
	minutes := ms / 60_000
	remainMS := ms % 60_000
	if remainMS == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dm%.1fs", minutes, float64(remainMS)/1000.0)
}

func normalizeArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}
	first := args[0]
	switch first {
	case "gen", "serve", "catalog", "set", "update", "help", "completion", "version":
		return args
	}
	if first == "-h" || first == "--help" || first == "-v" || first == "--version" {
		return args
	}
	if !containsPositionalSource(args) {
		return args
	}
	return append([]string{"gen"}, args...)
}

func containsPositionalSource(args []string) bool {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return i+1 < len(args)
		}
		if valueFlags[arg] {
			i++
			continue
		}
		if strings.HasPrefix(arg, "-") {
			continue
		}
		return true
	}
	return false
}
