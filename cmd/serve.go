package cmd

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"listory/internal/app"
	"listory/internal/cache"
	"listory/internal/logging"
	"listory/internal/output"
	"listory/internal/server"
)

func newServeCmd(stdout io.Writer, flags *genFlags) *cobra.Command {
	var addr, saveDir string
	serveCmd := &cobra.Command{
		Use:           "serve",
		Short:         "启动 HTTP 服务",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("读取当前目录失败：%w", err)
			}
			rt, err := app.Bootstrap(cmd.Context(), flags.options(stdout, stdout, cwd))
			if err != nil {
				return err
			}
			defer rt.Close()

			srv, err := newServer(rt, addr, saveDir)
			if err != nil {
				return err
			}
			rt.Logger.Emit(logging.Event{Event: "server_listening", Input: srv.Addr})
			fmt.Fprintf(stdout, "HTTP 服务已启动：%s\n", srv.Addr)
			return server.ListenAndServe(cmd.Context(), srv)
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", "", "监听地址，默认取配置 server.addr")
	serveCmd.Flags().StringVar(&saveDir, "save-dir", "", "同时把生成结果写入该目录")
	return serveCmd
}

func newServer(rt *app.Runtime, addr, saveDir string) (*http.Server, error) {
	cfg := rt.Config
	if strings.TrimSpace(addr) == "" {
		addr = cfg.Server.Addr
	}
	timeout := time.Duration(cfg.RequestTimeoutSec*(cfg.MaxRetries+1)) * time.Second
	var gen server.Generator = rt.Generator
	if cfg.CacheTTLSec > 0 {
		c := cache.New(rt.Generator, time.Duration(cfg.CacheTTLSec)*time.Second, 0)
		c.Timeout = timeout
		gen = c
	}
	sc := server.Config{
		Addr:      addr,
		Store:     rt.Store,
		Generator: gen,
		Logger:    rt.Logger,
		Timeout:   timeout,
	}
	if strings.TrimSpace(saveDir) != "" {
		fs, err := output.NewFileStore(saveDir, cfg.Output.Format)
		if err != nil {
			return nil, err
		}
		sc.Saver = fs
	}
	return server.New(sc), nil
}
