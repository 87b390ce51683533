// Package logging provides structured logging for octorus rallies.
//
// This package wraps Go's log/slog to provide JSON-formatted logs with
// context propagation support for debugging a rally after the fact.
//
// # Basic Usage
//
// Create a logger for a rally's session directory:
//
//	logger, err := logging.NewLogger("/path/to/session", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Debug("detailed info", "key", "value")
//	logger.Info("operation completed", "duration_ms", 150)
//	logger.Warn("potential issue", "threshold", 100)
//	logger.Error("operation failed", "error", err.Error())
//
// # Context Propagation
//
// Create child loggers with persistent context attributes:
//
//	sessionLogger := logger.WithSession("owner/repo_42")
//	iterationLogger := sessionLogger.WithIteration(3)
//	roleLogger := iterationLogger.WithRole("reviewer")
//
//	roleLogger.Info("running reviewer prompt")
//
// # Testing
//
// For testing, use [NopLogger] to discard all log output:
//
//	func TestSomething(t *testing.T) {
//	    logger := logging.NopLogger()
//	}
package logging
