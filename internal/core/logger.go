package core

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

func NewLogger(options Log) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(options.Level)
	if err != nil {
		return nil, err
	}

	logger.SetLevel(level)

	if options.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if options.File != "" {
		file, err := os.OpenFile(options.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("log file: %w", err)
		}

		logger.SetOutput(file)
	}

	return logger, nil
}
