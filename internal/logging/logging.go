package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// Options controls logger construction.
type Options struct {
	Debug bool
	// Format is "json", "console" or "auto"; auto picks console when stderr is a terminal.
	Format string
}

// New creates a structured logger writing to stderr, leaving stdout to the
// launched command. Debug enables the load trace; otherwise only warnings and
// errors are emitted.
func New(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = encoding(opts.Format)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.StacktraceKey = "stacktrace"
	cfg.DisableStacktrace = !opts.Debug
	cfg.Sampling = nil
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if opts.Debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	if cfg.Encoding == "console" {
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Named("rcloadenv"), nil
}

func encoding(format string) string {
	switch format {
	case "json", "console":
		return format
	}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return "console"
	}
	return "json"
}
