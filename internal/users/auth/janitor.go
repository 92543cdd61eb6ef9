// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/taibuivan/bazaar/internal/platform/metrics"
)

// Janitor periodically deletes expired sessions and verification codes.
//
// Expired rows are already ignored by every read path; purging only keeps
// the tables small.
type Janitor struct {
	sessions *SessionManager
	codes    *CodeManager
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewJanitor creates a Janitor over the service's managers.
func NewJanitor(service *Service, interval time.Duration, logger *slog.Logger, collector *metrics.Metrics) *Janitor {
	return &Janitor{
		sessions: service.Sessions(),
		codes:    service.Codes(),
		interval: interval,
		logger:   logger,
		metrics:  collector,
	}
}

// PurgeResult reports how many rows one pass removed.
type PurgeResult struct {
	Sessions int64 `json:"sessions"`
	Codes    int64 `json:"codes"`
}

// PurgeOnce runs a single purge pass.
func (janitor *Janitor) PurgeOnce(context context.Context) (PurgeResult, error) {
	var result PurgeResult

	sessions, err := janitor.sessions.Purge(context)
	if err != nil {
		return result, err
	}
	result.Sessions = sessions
	janitor.metrics.Purged("session", sessions)

	codes, err := janitor.codes.Purge(context)
	if err != nil {
		return result, err
	}
	result.Codes = codes
	janitor.metrics.Purged("verificationcode", codes)

	return result, nil
}

// Run purges every interval until context is cancelled. Failures are logged
// and retried on the next tick.
func (janitor *Janitor) Run(context context.Context) {
	ticker := time.NewTicker(janitor.interval)
	defer ticker.Stop()

	janitor.logger.Info("janitor_started", slog.Duration("interval", janitor.interval))

	for {
		select {
		case <-context.Done():
			janitor.logger.Info("janitor_stopped")
			return
		case <-ticker.C:
			result, err := janitor.PurgeOnce(context)
			if err != nil {
				janitor.logger.Error("janitor_purge_failed", slog.Any("error", err))
				continue
			}
			janitor.logger.Info("janitor_purged",
				slog.Int64("sessions", result.Sessions),
				slog.Int64("codes", result.Codes),
			)
		}
	}
}
