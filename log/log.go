// Copyright 2023 The croncatd Authors
// This file is part of the croncatd library.
//
// The croncatd library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The croncatd library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the croncatd library. If not, see <http://www.gnu.org/licenses/>.

// Package log provides leveled, key-value module loggers for croncatd.
// Each package owns a module logger obtained via NewModuleLogger; the daemon
// entry point routes output to the console and to per-chain rolling files.
package log

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Module names used with NewModuleLogger.
const (
	CMDCroncatd = "cmd/croncatd"
	CmdUtils    = "cmd/utils"
	Config      = "config"
	RPC         = "rpc"
	BlockStream = "blockstream"
	Store       = "store"
	Factory     = "factory"
	Manager     = "manager"
	Agent       = "agent"
	Tasks       = "tasks"
	Monitor     = "monitor"
	System      = "system"
)

// Logger is the leveled key-value logger handed to every module.
type Logger interface {
	NewWith(ctx ...interface{}) Logger
	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	// Crit logs the message and terminates the process.
	Crit(msg string, ctx ...interface{})
}

var (
	mu       sync.RWMutex
	root     *zap.SugaredLogger
	level    = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	fileSink *lumberjack.Logger
	errSink  *lumberjack.Logger
)

func init() {
	root = newConsoleLogger().Sugar()
}

func newConsoleLogger() *zap.Logger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level)
	return zap.New(core)
}

// SetLevel adjusts the global log level. The level applies to the console and
// the main chain log file; the error file always records Error and above.
func SetLevel(l zapcore.Level) {
	level.SetLevel(l)
}

// UseChainFiles routes logs additionally into rolling files under dir:
// <chain_id>.log for everything at the current level and <chain_id>.error.log
// for errors. Files rotate daily and keep four weeks of history.
func UseChainFiles(dir, chainID string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()

	fileSink = &lumberjack.Logger{
		Filename:   filepath.Join(dir, chainID+".log"),
		MaxSize:    128, // MB before forced rotation
		MaxAge:     28,  // days a rotated file is kept
		MaxBackups: 28,
		Compress:   true,
	}
	errSink = &lumberjack.Logger{
		Filename:   filepath.Join(dir, chainID+".error.log"),
		MaxSize:    128,
		MaxAge:     28,
		MaxBackups: 28,
		Compress:   true,
	}
	go func(file, errs *lumberjack.Logger) {
		for range time.Tick(24 * time.Hour) {
			_ = file.Rotate()
			_ = errs.Rotate()
		}
	}(fileSink, errSink)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	fileEnc := zapcore.NewConsoleEncoder(encCfg)

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stderr), level),
		zapcore.NewCore(fileEnc, zapcore.AddSync(fileSink), level),
		zapcore.NewCore(fileEnc, zapcore.AddSync(errSink), zap.NewAtomicLevelAt(zapcore.ErrorLevel)),
	)
	root = zap.New(core).Sugar()
	return nil
}

// NewModuleLogger returns the logger for one module. Safe to call from
// package-level var initializers; sinks installed later apply retroactively
// because moduleLogger resolves the root on every call.
func NewModuleLogger(module string) Logger {
	return &moduleLogger{ctx: []interface{}{"module", module}}
}

type moduleLogger struct {
	ctx []interface{}
}

func (l *moduleLogger) NewWith(ctx ...interface{}) Logger {
	merged := make([]interface{}, 0, len(l.ctx)+len(ctx))
	merged = append(merged, l.ctx...)
	merged = append(merged, ctx...)
	return &moduleLogger{ctx: merged}
}

func (l *moduleLogger) sugar() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return root.With(l.ctx...)
}

func (l *moduleLogger) Trace(msg string, ctx ...interface{}) {
	// zap has no trace level; trace maps onto debug.
	l.sugar().Debugw(msg, ctx...)
}

func (l *moduleLogger) Debug(msg string, ctx ...interface{}) { l.sugar().Debugw(msg, ctx...) }
func (l *moduleLogger) Info(msg string, ctx ...interface{})  { l.sugar().Infow(msg, ctx...) }
func (l *moduleLogger) Warn(msg string, ctx ...interface{})  { l.sugar().Warnw(msg, ctx...) }
func (l *moduleLogger) Error(msg string, ctx ...interface{}) { l.sugar().Errorw(msg, ctx...) }
func (l *moduleLogger) Crit(msg string, ctx ...interface{})  { l.sugar().Fatalw(msg, ctx...) }
