package websocket

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

// loggerFromEnv builds the internal logger: disabled unless WS_LOG=1, in
// which case debug output goes to stdout or to WS_LOG_FILE.
func loggerFromEnv() (*zap.Logger, error) {
	if os.Getenv("WS_LOG") != "1" {
		return zap.NewNop(), nil
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stdout"}
	if path := os.Getenv("WS_LOG_FILE"); path != "" {
		cfg.OutputPaths = []string{path}
	}

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: [%w]", err)
	}

	return l.Named("websocket"), nil
}
