// Package logging builds the debug logger that receives every line of
// external command output.
//
// Operator-facing messages go through the provisioning observer and the
// standard log package. The debug log is a separate JSON file so a failed run
// can be diagnosed without flooding the terminal.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DebugLogName is the file name of the debug log inside the state directory.
const DebugLogName = "debug.log"

// Options configures the debug logger.
type Options struct {
	// Path is the debug log file. Empty disables file logging.
	Path string
	// Verbose also mirrors debug output to stderr.
	Verbose bool
}

// New returns a logr.Logger backed by zap and a function that flushes it.
func New(opts Options) (logr.Logger, func(), error) {
	var cores []zapcore.Core
	level := zap.NewAtomicLevelAt(zapcore.DebugLevel)

	if opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o700); err != nil {
			return logr.Discard(), func() {}, fmt.Errorf("failed to create log directory: %w", err)
		}
		// #nosec G304
		f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return logr.Discard(), func() {}, fmt.Errorf("failed to open debug log: %w", err)
		}
		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(f), level))
	}

	if opts.Verbose {
		encoderCfg := zap.NewDevelopmentEncoderConfig()
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.Lock(os.Stderr), level))
	}

	if len(cores) == 0 {
		return logr.Discard(), func() {}, nil
	}

	z := zap.New(zapcore.NewTee(cores...))
	flush := func() { _ = z.Sync() }
	return zapr.NewLogger(z), flush, nil
}
