package main

import (
	"github.com/septivank/solar-dashboard/internal/config"
	"github.com/septivank/solar-dashboard/internal/logging"
	"go.uber.org/zap"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
}
