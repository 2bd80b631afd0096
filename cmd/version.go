package cmd

import (
	"fmt"
	"io"
	"runtime"
)

// Set at build time with -ldflags "-X listory/cmd.Version=...".
var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

func versionText() string {
	return fmt.Sprintf("listory 版本：%s（commit: %s，构建时间: %s，%s/%s）", Version, Commit, BuildTime, runtime.GOOS, runtime.GOARCH)
}

func printVersion(w io.Writer) {
	fmt.Fprintln(w, versionText())
}
