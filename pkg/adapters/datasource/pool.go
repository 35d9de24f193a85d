package datasource

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datagate/pkg/logging"
)

// Pool holds live connectors keyed by data source ID.
// Connectors are created on first use and reused until removed.
type Pool struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*pooledConnector
	logger  *zap.Logger
}

// pooledConnector guards creation of a single connector so concurrent first
// access for the same data source connects exactly once.
type pooledConnector struct {
	mu        sync.Mutex
	connector Connector
	createdAt time.Time
	lastUsed  time.Time
}

// NewPool creates an empty connector pool.
func NewPool(logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		entries: make(map[uuid.UUID]*pooledConnector),
		logger:  logger,
	}
}

// GetOrCreate returns the pooled connector for id, or builds one with create,
// connects it and stores it. A failed connect leaves nothing in the pool.
func (p *Pool) GetOrCreate(ctx context.Context, id uuid.UUID, create func() (Connector, error)) (Connector, error) {
	for {
		entry := p.entry(id)

		entry.mu.Lock()
		if !p.owns(id, entry) {
			// Evicted while we waited; start again from the map.
			entry.mu.Unlock()
			continue
		}
		conn, err := p.getOrConnect(ctx, id, entry, create)
		entry.mu.Unlock()
		return conn, err
	}
}

func (p *Pool) entry(id uuid.UUID) *pooledConnector {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[id]
	if !ok {
		entry = &pooledConnector{}
		p.entries[id] = entry
	}
	return entry
}

// owns reports whether entry is still the pooled entry for id. Remove and
// CloseAll unlink an entry before taking its lock, so a waiter holding
// entry.mu can tell it was evicted.
func (p *Pool) owns(id uuid.UUID, entry *pooledConnector) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entries[id] == entry
}

// getOrConnect runs with entry.mu held.
func (p *Pool) getOrConnect(ctx context.Context, id uuid.UUID, entry *pooledConnector, create func() (Connector, error)) (Connector, error) {
	if entry.connector != nil {
		entry.lastUsed = time.Now()
		return entry.connector, nil
	}

	conn, err := create()
	if err != nil {
		p.discard(id, entry)
		return nil, err
	}

	if err := conn.Connect(ctx); err != nil {
		p.logger.Warn("connector connect failed",
			zap.String("data_source_id", id.String()),
			zap.String("error", logging.SanitizeError(err)),
		)
		_ = conn.Disconnect()
		p.discard(id, entry)
		return nil, err
	}

	now := time.Now()
	entry.connector = conn
	entry.createdAt = now
	entry.lastUsed = now

	p.logger.Info("connected data source",
		zap.String("data_source_id", id.String()),
	)
	return conn, nil
}

// discard drops an entry that never produced a connector, unless it has
// already been replaced. Called with entry.mu held; waiters retry.
func (p *Pool) discard(id uuid.UUID, entry *pooledConnector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.entries[id] == entry {
		delete(p.entries, id)
	}
}

// Remove disconnects and evicts the connector for id. Unknown ids are ignored.
func (p *Pool) Remove(id uuid.UUID) error {
	p.mu.Lock()
	entry, ok := p.entries[id]
	delete(p.entries, id)
	p.mu.Unlock()

	if !ok {
		return nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.connector == nil {
		return nil
	}

	err := entry.connector.Disconnect()
	entry.connector = nil
	p.logger.Debug("removed connector", zap.String("data_source_id", id.String()))
	return err
}

// CloseAll disconnects every pooled connector. Safe to call more than once.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[uuid.UUID]*pooledConnector)
	p.mu.Unlock()

	for id, entry := range entries {
		entry.mu.Lock()
		if entry.connector != nil {
			if err := entry.connector.Disconnect(); err != nil {
				p.logger.Warn("failed to disconnect connector",
					zap.String("data_source_id", id.String()),
					zap.String("error", logging.SanitizeError(err)),
				)
			}
			entry.connector = nil
		}
		entry.mu.Unlock()
	}

	if len(entries) > 0 {
		p.logger.Info("connector pool closed", zap.Int("count", len(entries)))
	}
}

// Stats returns a snapshot of the pool.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	snapshot := make(map[uuid.UUID]*pooledConnector, len(p.entries))
	for id, entry := range p.entries {
		snapshot[id] = entry
	}
	p.mu.Unlock()

	// Entry locks are taken without holding p.mu; GetOrCreate acquires them in
	// the opposite order.
	now := time.Now()
	stats := PoolStats{DataSourceIDs: make([]string, 0, len(snapshot))}
	for id, entry := range snapshot {
		entry.mu.Lock()
		live := entry.connector != nil
		idle := int(now.Sub(entry.lastUsed).Seconds())
		entry.mu.Unlock()
		if !live {
			continue
		}
		stats.TotalConnectors++
		stats.DataSourceIDs = append(stats.DataSourceIDs, id.String())
		if idle > stats.OldestIdleSeconds {
			stats.OldestIdleSeconds = idle
		}
	}
	return stats
}

// PoolStats contains statistics about the connector pool.
type PoolStats struct {
	TotalConnectors   int      `json:"total_connectors"`
	DataSourceIDs     []string `json:"data_source_ids"`
	OldestIdleSeconds int      `json:"oldest_idle_seconds"`
}
