// Package backendtest provides an in-memory backend.Conn for tests that
// need to observe the SQL sent to a relational backend without a server.
package backendtest

import (
	"context"
	"sync"

	"github.com/johndauphine/dualstore-migrate/internal/backend"
)

// Call records one statement received by a FakeConn.
type Call struct {
	Query string
	Args  []any
}

// FakeConn implements backend.Conn. QueryFunc and ExecFunc, when set,
// produce the responses; otherwise Query returns no rows and Exec affects none.
type FakeConn struct {
	QueryFunc func(query string, args []any) ([]backend.Row, error)
	ExecFunc  func(query string, args []any) (int64, error)
	PingErr   error
	CloseErr  error

	mu     sync.Mutex
	calls  []Call
	closed int
}

func (f *FakeConn) record(query string, args []any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Query: query, Args: args})
}

// Query records the call and delegates to QueryFunc.
func (f *FakeConn) Query(_ context.Context, query string, args ...any) ([]backend.Row, error) {
	f.record(query, args)
	if f.QueryFunc == nil {
		return nil, nil
	}
	return f.QueryFunc(query, args)
}

// Exec records the call and delegates to ExecFunc.
func (f *FakeConn) Exec(_ context.Context, query string, args ...any) (int64, error) {
	f.record(query, args)
	if f.ExecFunc == nil {
		return 0, nil
	}
	return f.ExecFunc(query, args)
}

// Ping returns PingErr.
func (f *FakeConn) Ping(context.Context) error {
	return f.PingErr
}

// Close counts the call and returns CloseErr.
func (f *FakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return f.CloseErr
}

// Calls returns a copy of every recorded statement in order.
func (f *FakeConn) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Closed returns how many times Close was called.
func (f *FakeConn) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
