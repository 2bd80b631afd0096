package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LevelEnv selects the minimum level written, e.g. LISTORY_LOG_LEVEL=debug.
const LevelEnv = "LISTORY_LOG_LEVEL"

// Logger writes one JSON object per line. Unless verbose, only warn and
// error events are written.
type Logger struct {
	zl      zerolog.Logger
	verbose bool
}

type Event struct {
	TS          string `json:"ts"`
	Level       string `json:"level"`
	Event       string `json:"event"`
	Input       string `json:"input,omitempty"`
	Marketplace string `json:"marketplace,omitempty"`
	Platform    string `json:"platform,omitempty"`
	Provider    string `json:"provider,omitempty"`
	Model       string `json:"model,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
	Step        string `json:"step,omitempty"`
	Attempt     int    `json:"attempt,omitempty"`
	WaitMS      int64  `json:"wait_ms,omitempty"`
	LatencyMS   int64  `json:"latency_ms,omitempty"`
	OutputFile  string `json:"output_file,omitempty"`
	Error       string `json:"error,omitempty"`
}

func New(stdout io.Writer, logFile string, verbose bool) (*Logger, io.Closer, error) {
	level := ParseLevel(os.Getenv(LevelEnv))
	if logFile == "" {
		return newLogger(stdout, level, verbose), nil, nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return newLogger(io.MultiWriter(stdout, f), level, verbose), f, nil
}

func newLogger(w io.Writer, level zerolog.Level, verbose bool) *Logger {
	return &Logger{zl: zerolog.New(zerolog.SyncWriter(w)).Level(level), verbose: verbose}
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// ParseLevel maps debug|info|warn|error to a zerolog level, defaulting to debug
// so that verbose mode shows every event.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.DebugLevel
	}
}

func (l *Logger) Verbose() bool {
	return l != nil && l.verbose
}

func (l *Logger) Emit(ev Event) {
	if l == nil {
		return
	}
	lvl, err := zerolog.ParseLevel(ev.Level)
	if err != nil || ev.Level == "" {
		lvl = zerolog.InfoLevel
	}
	if !l.verbose && lvl < zerolog.WarnLevel {
		return
	}
	if ev.TS == "" {
		ev.TS = time.Now().Format(time.RFC3339Nano)
	}
	e := l.zl.WithLevel(lvl)
	if e == nil {
		return
	}
	e = e.Str("ts", ev.TS).Str("event", ev.Event)
	str := func(k, v string) {
		if v != "" {
			e = e.Str(k, v)
		}
	}
	num := func(k string, v int64) {
		if v != 0 {
			e = e.Int64(k, v)
		}
	}
	str("input", ev.Input)
	str("marketplace", ev.Marketplace)
	str("platform", ev.Platform)
	str("provider", ev.Provider)
	str("model", ev.Model)
	str("request_id", ev.RequestID)
	str("step", ev.Step)
	num("attempt", int64(ev.Attempt))
	num("wait_ms", ev.WaitMS)
	num("latency_ms", ev.LatencyMS)
	str("output_file", ev.OutputFile)
	str("error", ev.Error)
	e.Send()
}
