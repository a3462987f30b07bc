// Package logger provides adapters for popular logger libraries to work with ferndb's Logger interface.
//
// The adapters allow you to use your existing logger with ferndb without writing boilerplate.
// Note that the standard library's slog.Logger already implements ferndb.Logger directly.
//
// Example with zap:
//
//	import (
//	    "ferndb"
//	    "logger"
//	    "go.uber.org/zap"
//	)
//
//	func main() {
//	    zapLogger, _ := zap.NewProduction()
//
//	    db, err := ferndb.Open("index.db", ferndb.WithLogger(logger.NewZap(zapLogger)))
//	    if err != nil {
//	        panic(err)
//	    }
//	    defer db.Close()
//	}
package logger
