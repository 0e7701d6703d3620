// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package logging sets up the process-wide zerolog logger and derives
// per-connection and per-component sub-loggers from it.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger: a console writer for
// human-readable runtime output, timestamped, at the given level. Level
// strings match zerolog's own names (trace, debug, info, warn, error);
// an unrecognised level falls back to info. file, when non-empty and not
// "-", redirects output to that path (appending, creating it if needed);
// a file that cannot be opened falls back to stdout rather than aborting
// startup over a logging misconfiguration.
func Init(level, file string) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(level))

	out := os.Stdout
	if file != "" && file != "-" {
		f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			out = f
		}
	}

	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).With().Timestamp().Str("app", "tcpframed").Logger()
	log.Logger = logger
	return logger
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// ForComponent returns a sub-logger tagged with the given component name,
// e.g. "pipeline", "rtu", "jsonstream".
func ForComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// ForConnection returns a sub-logger tagged with a connection's remote
// address, so every log line for a connection's lifetime can be
// correlated without passing a connection ID through every call.
func ForConnection(logger zerolog.Logger, remoteAddr string) zerolog.Logger {
	return logger.With().Str("remoteAddr", remoteAddr).Logger()
}
