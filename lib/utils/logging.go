/*
Copyright 2018 Gravitational, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package utils

import (
	"os"
	"path/filepath"

	"github.com/gravitational/nodestrap/lib/defaults"

	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"
)

// InitLogging initializes logging to log both to stderr and to a file
func InitLogging(level log.Level, logFile string) {
	log.StandardLogger().Hooks.Add(&Hook{
		path: logFile,
	})
	InitConsoleLogging(level)
}

// InitConsoleLogging initializes logging to stderr only
func InitConsoleLogging(level log.Level) {
	log.SetLevel(level)
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
}

// NewFileLogger returns a logger that appends entries to the file at path.
// The returned function closes the file
func NewFileLogger(path string) (*log.Logger, func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), defaults.SharedDirMask); err != nil {
		return nil, nil, trace.ConvertSystemError(err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, defaults.SharedReadMask)
	if err != nil {
		return nil, nil, trace.ConvertSystemError(err)
	}
	logger := log.New()
	logger.SetOutput(f)
	logger.SetFormatter(&log.TextFormatter{
		DisableColors: true,
		FullTimestamp: true,
	})
	return logger, f.Close, nil
}

// Hook implements log.Hook and appends log messages to a file
type Hook struct {
	path string
}

// Fire writes the provided log entry to the configured log file
//
// It never returns an error to avoid default logrus behavior of spitting
// out fire hook errors into stderr.
func (r *Hook) Fire(entry *log.Entry) error {
	msg, err := entry.String()
	if err != nil {
		defaultLogger().Warnf("Failed to convert log entry: %v.", err)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(r.path), defaults.SharedDirMask); err != nil {
		defaultLogger().Warnf("Failed to create %v: %v.", filepath.Dir(r.path), err)
		return nil
	}
	f, err := os.OpenFile(r.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, defaults.SharedReadMask)
	if err != nil {
		defaultLogger().Warnf("Failed to open %v: %v.", r.path, err)
		return nil
	}
	defer f.Close()

	_, err = f.WriteString(msg)
	if err != nil {
		defaultLogger().Warnf("Failed to write log entry: %v.", err)
		return nil
	}

	return nil
}

// Levels returns all levels, the hook is not filtered by level
func (r *Hook) Levels() []log.Level {
	return log.AllLevels
}

func defaultLogger() *log.Logger {
	return log.New()
}
