// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	operationIDKey contextKey = "operation_id"
	loggerKey      contextKey = "logger"
)

// GenerateOperationID returns a short identifier for one backup or restore run.
// The first 8 characters of a UUID are enough to tell runs apart in a log.
func GenerateOperationID() string {
	return uuid.New().String()[:8]
}

// ContextWithOperationID returns a context carrying the given operation ID.
func ContextWithOperationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, operationIDKey, id)
}

// OperationIDFromContext returns the operation ID, or "" when absent.
func OperationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(operationIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithLogger stores a pre-configured logger in the context.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func ContextWithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// Ctx returns a logger carrying the context's operation ID, if any.
//
//	logging.Ctx(ctx).Info().Msg("Dumping database")
//	// {"level":"info","operation_id":"1f2e3d4c","message":"Dumping database"}
func Ctx(ctx context.Context) *zerolog.Logger {
	logger, ok := ctx.Value(loggerKey).(zerolog.Logger)
	if !ok {
		logger = Logger()
	}
	if id := OperationIDFromContext(ctx); id != "" {
		logger = logger.With().Str("operation_id", id).Logger()
	}
	return &logger
}
