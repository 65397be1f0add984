package core

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/coregx/strata/internal/logger"
)

// healthChecker pings the pool at a fixed interval.
type healthChecker struct {
	db       *sql.DB
	logger   logger.Logger
	interval time.Duration
	stop     chan struct{}
	wg       sync.WaitGroup

	mu       sync.RWMutex
	lastErr  error
	lastPing time.Time
}

func newHealthChecker(db *sql.DB, log logger.Logger, interval time.Duration) *healthChecker {
	return &healthChecker{
		db:       db,
		logger:   log,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

func (h *healthChecker) start() {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.ping(context.Background())
			case <-h.stop:
				return
			}
		}
	}()
}

func (h *healthChecker) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := h.db.PingContext(ctx)

	h.mu.Lock()
	h.lastErr = err
	h.lastPing = time.Now()
	h.mu.Unlock()

	if err != nil {
		h.logger.Warn("database health check failed", "error", err, "interval", h.interval)
	} else {
		h.logger.Debug("database health check passed", "interval", h.interval)
	}
	return err
}

func (h *healthChecker) shutdown() {
	close(h.stop)
	h.wg.Wait()
}

func (h *healthChecker) status() (time.Time, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastPing, h.lastErr
}

// Ping checks the connection. With a health check configured the result
// is also recorded for IsHealthy.
func (db *DB) Ping(ctx context.Context) error {
	if db.sqlDB == nil {
		return ErrNoConnection
	}
	if db.health != nil {
		return db.health.ping(ctx)
	}
	return db.sqlDB.PingContext(ctx)
}

// IsHealthy reports whether the last background ping succeeded. It is
// always true without WithHealthCheck.
func (db *DB) IsHealthy() bool {
	if db.health == nil {
		return true
	}
	_, err := db.health.status()
	return err == nil
}

// LastHealthCheck returns the time of the last ping, zero if none ran.
func (db *DB) LastHealthCheck() time.Time {
	if db.health == nil {
		return time.Time{}
	}
	t, _ := db.health.status()
	return t
}
