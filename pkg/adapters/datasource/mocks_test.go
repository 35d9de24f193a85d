package datasource

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

type mockConnector struct {
	connectErr   error
	connectDelay time.Duration

	connects    atomic.Int32
	disconnects atomic.Int32

	mu   sync.Mutex
	rows []map[string]any
}

var _ Connector = (*mockConnector)(nil)

func (m *mockConnector) Connect(ctx context.Context) error {
	m.connects.Add(1)
	if m.connectDelay > 0 {
		select {
		case <-time.After(m.connectDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.connectErr
}

func (m *mockConnector) Disconnect() error {
	m.disconnects.Add(1)
	return nil
}

func (m *mockConnector) TestConnection(ctx context.Context) bool {
	return m.Connect(ctx) == nil
}

func (m *mockConnector) Capabilities() Capabilities {
	return Capabilities{CanQuery: true, CanList: true}
}

func (m *mockConnector) Query(ctx context.Context, req QueryRequest) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Rows(FilterBlockedColumns(m.rows, req.BlockedColumns), 0), nil
}

func (m *mockConnector) List(ctx context.Context, req ListRequest) (*Result, error) {
	return Rows(nil, 0), nil
}

func (m *mockConnector) Create(ctx context.Context, req WriteRequest) (*Result, error) {
	return nil, errors.New("not supported")
}

func (m *mockConnector) Update(ctx context.Context, req WriteRequest) (*Result, error) {
	return nil, errors.New("not supported")
}

func (m *mockConnector) Delete(ctx context.Context, req WriteRequest) (*Result, error) {
	return nil, errors.New("not supported")
}
