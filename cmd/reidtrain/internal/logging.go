package internal

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogFileName 是训练日志在 OUTPUT_DIR 下的文件名。
const LogFileName = "train_log.txt"

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05,000")
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncodeCaller = nil
	cfg.CallerKey = zapcore.OmitKey
	cfg.StacktraceKey = zapcore.OmitKey
	return cfg
}

func level(verbose bool) zapcore.Level {
	if verbose {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

// SetupTrainLogger 构建训练日志：同时输出到 stdout 与 outputDir/train_log.txt（追加写入）。
// outputDir 为空时只写 stdout。返回的 cleanup 负责 Sync 并关闭日志文件。
func SetupTrainLogger(name, outputDir string, verbose bool) (*zap.Logger, func(), error) {
	enc := zapcore.NewConsoleEncoder(encoderConfig())
	lvl := level(verbose)

	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.Lock(os.Stdout), lvl)}
	closeFile := func() {}
	if outputDir != "" {
		sink, closeSink, err := zap.Open(filepath.Join(outputDir, LogFileName))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open train log: %w", err)
		}
		cores = append(cores, zapcore.NewCore(enc.Clone(), sink, lvl))
		closeFile = closeSink
	}

	logger := zap.New(zapcore.NewTee(cores...)).Named(name)
	return logger, func() {
		_ = logger.Sync()
		closeFile()
	}, nil
}

// NewConsoleLogger 返回写 stderr 的日志，用于 runs/search 等只读子命令。
func NewConsoleLogger(verbose bool) *zap.Logger {
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.Lock(os.Stderr), level(verbose))
	return zap.New(core).Named("reidtrain")
}
