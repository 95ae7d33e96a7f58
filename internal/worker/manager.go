// Package worker hosts the long-running background loops: the vendor cache
// refresher and the ingest queue drainer.
package worker

import (
	"context"

	"go.uber.org/zap"
)

// Worker is a background loop managed by the Manager
type Worker interface {
	Start(ctx context.Context) error
	Stop()
	Name() string
}

// Manager starts and stops all registered workers together
type Manager struct {
	workers []Worker
	logger  *zap.Logger
}

// NewManager creates a worker manager
func NewManager(logger *zap.Logger, workers ...Worker) *Manager {
	return &Manager{workers: workers, logger: logger}
}

// Start starts every worker; a failed start stops the ones already running
func (m *Manager) Start(ctx context.Context) error {
	started := make([]Worker, 0, len(m.workers))
	for _, w := range m.workers {
		if err := w.Start(ctx); err != nil {
			m.logger.Error("Failed to start worker",
				zap.String("worker", w.Name()),
				zap.Error(err))
			for _, s := range started {
				s.Stop()
			}
			return err
		}
		started = append(started, w)
		m.logger.Info("Worker started", zap.String("worker", w.Name()))
	}
	return nil
}

// Stop stops all workers in reverse start order
func (m *Manager) Stop() {
	for i := len(m.workers) - 1; i >= 0; i-- {
		m.workers[i].Stop()
		m.logger.Info("Worker stopped", zap.String("worker", m.workers[i].Name()))
	}
}
