package cli

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// WrapString wraps flag help text at 80 columns.
func WrapString(s string) string {
	const width = 80
	var out strings.Builder
	for _, para := range strings.Split(s, "\n") {
		line := 0
		for i, word := range strings.Fields(para) {
			if i > 0 {
				if line+1+len(word) > width {
					out.WriteString("\n")
					line = 0
				} else {
					out.WriteString(" ")
					line++
				}
			}
			out.WriteString(word)
			line += len(word)
		}
		out.WriteString("\n")
	}
	return strings.TrimSuffix(out.String(), "\n")
}

// newLogger builds a console logger at the given level.
func newLogger(level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		var err error
		if lvl, err = zapcore.ParseLevel(level); err != nil {
			return nil, fmt.Errorf("log setting: %w", err)
		}
	}
	cc := zap.NewProductionConfig()
	cc.DisableCaller = true
	cc.DisableStacktrace = true
	cc.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	cc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cc.Encoding = "console"
	cc.Level = zap.NewAtomicLevelAt(lvl)
	cc.Sampling = nil
	return cc.Build()
}
