package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap logger writing to stdout. Unknown levels fall back to info,
// unknown encodings to json.
func New(level, encoding string) (*zap.Logger, error) {
	atomicLevel := zap.NewAtomicLevel()
	lvl := strings.ToLower(level)
	if lvl == "" {
		lvl = "info"
	}
	if err := atomicLevel.UnmarshalText([]byte(lvl)); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level '%s', using 'info'. Error: %v\n", level, err)
		atomicLevel.SetLevel(zap.InfoLevel)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	enc := strings.ToLower(encoding)
	if enc != "console" && enc != "json" {
		enc = "json"
	}

	zapConfig := zap.Config{
		Level:             atomicLevel,
		Development:       false,
		DisableCaller:     true,
		DisableStacktrace: true,
		Encoding:          enc,
		EncoderConfig:     encoderCfg,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
