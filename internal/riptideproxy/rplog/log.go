// Copyright 2015 Matthew Holt and The Caddy Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package rplog provides the single process-wide structured logger used
// throughout riptide-proxy, and the mapping from the CLI's --loglevel
// values onto zap levels.
package rplog

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger = zap.NewNop()
)

// Set installs l as the process-wide logger. Safe to call concurrently
// with Log(); intended to be called once during startup.
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// Log returns the current process-wide logger. Before Set is called it is
// a no-op logger, so components can be constructed and log freely during
// tests without a prior Init.
func Log() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Named returns a child of the process-wide logger tagged with name, the
// way every component in this codebase identifies its own log lines.
func Named(name string) *zap.Logger {
	return Log().Named(name)
}

// Init builds and installs a development-friendly console logger at the
// given level name. levelName must be one of the values accepted by the
// --loglevel flag: DEBUG, INFO, WARNING, ERROR, FATAL, CRITICAL.
func Init(levelName string) error {
	level, err := ParseLevel(levelName)
	if err != nil {
		return err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	Set(l)
	return nil
}

// ParseLevel maps the proxy's CLI level names onto zap levels. WARNING is
// an alias of zap's WarnLevel, and CRITICAL of zap's FatalLevel, since zap
// has no separate "critical" tier.
func ParseLevel(name string) (zapcore.Level, error) {
	switch strings.ToUpper(name) {
	case "DEBUG":
		return zapcore.DebugLevel, nil
	case "INFO":
		return zapcore.InfoLevel, nil
	case "WARNING", "WARN":
		return zapcore.WarnLevel, nil
	case "ERROR":
		return zapcore.ErrorLevel, nil
	case "FATAL":
		return zapcore.FatalLevel, nil
	case "CRITICAL":
		return zapcore.FatalLevel, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}
