package ferndb

import "ferndb/internal/base"

// Logger interface matches the implementation of slog.
// See the logger module for adapter implementations for common logger
// libraries.
type Logger = base.Logger

// DiscardLogger is the default logger that compiles to a no-op
type DiscardLogger = base.DiscardLogger
