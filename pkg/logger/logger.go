// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package logger

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	LogContainer logContainer
	loggerInit   sync.Once
)

// Options select where log entries go, see Configure.
type Options struct {
	// LogFile receives a JSON copy of every entry when set.
	LogFile string
	Debug   bool
}

type logContainer struct {
	level        zap.AtomicLevel
	logger       *zap.Logger
	simpleLogger *zap.SugaredLogger
}

// Configure sets the log destinations. Loggers handed out earlier are updated
// in place, so package level loggers follow along.
func (l *logContainer) Configure(opts Options) error {
	l.init()
	if opts.Debug {
		l.level.SetLevel(zapcore.DebugLevel)
	} else {
		l.level.SetLevel(zapcore.InfoLevel)
	}
	if opts.LogFile == "" {
		return nil
	}
	core, err := getJsonCore(opts.LogFile, l.level)
	if err != nil {
		return err
	}
	*l.logger = *zap.New(zapcore.NewTee(getConsoleCore(l.level), core))
	*l.simpleLogger = *l.logger.Sugar()
	return nil
}

func (l *logContainer) init() {
	loggerInit.Do(func() {
		l.level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		l.logger = zap.New(getConsoleCore(l.level))
		l.simpleLogger = l.logger.Sugar()
	})
}

// GetLogger returns the pointer to the logger and creates one if none exists
func (l *logContainer) GetLogger() *zap.Logger {
	l.init()
	return l.logger
}

// GetSimpleLogger returns the pointer to the sugared logger and creates one
// if none exists
func (l *logContainer) GetSimpleLogger() *zap.SugaredLogger {
	l.init()
	return l.simpleLogger
}

// Sync flushes buffered entries, errors from syncing a terminal are ignored
func (l *logContainer) Sync() {
	l.init()
	_ = l.logger.Sync()
}

// String mirrors zap.String
func (l *logContainer) String(key string, val string) zap.Field {
	return zap.String(key, val)
}

// Int mirrors zap.Int
func (l *logContainer) Int(key string, val int) zap.Field {
	return zap.Int(key, val)
}

// Hex formats an address or register value the way the hardware manuals do
func (l *logContainer) Hex(key string, val uint64) zap.Field {
	return zap.String(key, fmt.Sprintf("%#08x", val))
}

func getConsoleEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(encoderConfig)
}

func getJsonEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.EpochTimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(encoderConfig)
}

func getLogWriter(path string) (zapcore.WriteSyncer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("unable to open logfile: %w", err)
	}
	return zapcore.AddSync(f), nil
}

// Command output goes to stdout, so the console core logs to stderr.
func getConsoleCore(level zapcore.LevelEnabler) zapcore.Core {
	return zapcore.NewCore(getConsoleEncoder(), zapcore.Lock(os.Stderr), level)
}

func getJsonCore(path string, level zapcore.LevelEnabler) (zapcore.Core, error) {
	w, err := getLogWriter(path)
	if err != nil {
		return nil, err
	}
	return zapcore.NewCore(getJsonEncoder(), w, level), nil
}
