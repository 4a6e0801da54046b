// Package logging builds the process logger and forwards relay-tagged
// entries to the alerting sink.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"frontrunner/internal/config"
)

// RelayKey is the field that marks an entry for external notification.
const RelayKey = "relay"

// Relay events.
const (
	DecisionEnded         = "decisionEnd"
	StayingCourse         = "stayingCourse"
	CuttingLosses         = "cuttingLosses"
	HeartbeatUpdate       = "heartbeatUpdate"
	RoamTradeEventHandled = "roamTradeEventHandled"
	TradeFailed           = "tradeFailed"
)

// Relay tags a log entry for the alerting sink.
func Relay(event string) zap.Field {
	return zap.String(RelayKey, event)
}

// New builds a JSON production logger. When alerter is non-nil, entries that
// carry a relay tag or are at error level and above are also sent to it.
func New(cfg config.LogConfig, alerter Alerter, alertCfg config.AlertConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.EncoderConfig.TimeKey = "time"

	if cfg.Level != "" {
		lvl, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	if alerter == nil {
		return logger, nil
	}
	relay := NewRelayCore(alerter, alertCfg.RatePerMin, alertCfg.Timeout)
	return logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, relay)
	})), nil
}
