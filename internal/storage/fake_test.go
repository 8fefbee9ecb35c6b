package storage

import (
	"context"
	"sync"
)

// fakeClient records queries and answers them through injectable functions.
type fakeClient struct {
	mu     sync.Mutex
	reads  []*GraphQuery
	writes []*GraphQuery

	readFn  func(query *GraphQuery) (*QueryResult, error)
	writeFn func(query *GraphQuery) (*QueryResult, error)
}

func newFakeClient() *fakeClient {
	return &fakeClient{}
}

func (f *fakeClient) Connect(ctx context.Context) error { return nil }
func (f *fakeClient) Close() error                      { return nil }
func (f *fakeClient) Ping(ctx context.Context) error    { return nil }

func (f *fakeClient) ExecuteRead(ctx context.Context, query *GraphQuery) (*QueryResult, error) {
	f.mu.Lock()
	f.reads = append(f.reads, query)
	fn := f.readFn
	f.mu.Unlock()
	if fn != nil {
		return fn(query)
	}
	return &QueryResult{}, nil
}

func (f *fakeClient) ExecuteWrite(ctx context.Context, query *GraphQuery) (*QueryResult, error) {
	f.mu.Lock()
	f.writes = append(f.writes, query)
	fn := f.writeFn
	f.mu.Unlock()
	if fn != nil {
		return fn(query)
	}
	return &QueryResult{}, nil
}

func (f *fakeClient) InitializeSchema(ctx context.Context) error { return nil }

func (f *fakeClient) GetGraphStats(ctx context.Context) (*GraphStats, error) {
	return &GraphStats{}, nil
}

func (f *fakeClient) DeleteGraph(ctx context.Context) error { return nil }

func (f *fakeClient) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reads)
}

func (f *fakeClient) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func (f *fakeClient) lastWrite() *GraphQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) == 0 {
		return nil
	}
	return f.writes[len(f.writes)-1]
}
