package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeComponent records start/stop calls on a shared journal.
type fakeComponent struct {
	name     string
	startErr error
	stopErr  error
	journal  *journal
}

type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func (c *fakeComponent) Start(ctx context.Context) error {
	if c.startErr != nil {
		return c.startErr
	}
	c.journal.add("start " + c.name)
	return nil
}

func (c *fakeComponent) Stop(ctx context.Context) error {
	c.journal.add("stop " + c.name)
	return c.stopErr
}

func (c *fakeComponent) Name() string { return c.name }

func TestManagerStartsInDependencyOrder(t *testing.T) {
	j := &journal{}
	storage := &fakeComponent{name: "storage", journal: j}
	registry := &fakeComponent{name: "registry", journal: j}
	server := &fakeComponent{name: "server", journal: j}

	m := NewManager()
	require.NoError(t, m.Register(storage))
	require.NoError(t, m.Register(registry, storage))
	require.NoError(t, m.Register(server, registry, storage))

	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, []string{"start storage", "start registry", "start server"}, j.all())

	assert.True(t, m.IsRunning(storage))
	assert.True(t, m.IsRunning(server))
}

func TestManagerStopsInReverseOrder(t *testing.T) {
	j := &journal{}
	storage := &fakeComponent{name: "storage", journal: j}
	registry := &fakeComponent{name: "registry", journal: j}
	server := &fakeComponent{name: "server", journal: j}

	m := NewManager()
	require.NoError(t, m.Register(storage))
	require.NoError(t, m.Register(registry, storage))
	require.NoError(t, m.Register(server, registry))
	require.NoError(t, m.Start(context.Background()))

	require.NoError(t, m.Stop(context.Background()))
	assert.Equal(t, []string{
		"start storage", "start registry", "start server",
		"stop server", "stop registry", "stop storage",
	}, j.all())

	assert.False(t, m.IsRunning(storage))
	assert.False(t, m.IsRunning(server))
}

func TestManagerRollsBackOnStartFailure(t *testing.T) {
	j := &journal{}
	storage := &fakeComponent{name: "storage", journal: j}
	registry := &fakeComponent{name: "registry", journal: j, startErr: errors.New("boot failed")}

	m := NewManager()
	require.NoError(t, m.Register(storage))
	require.NoError(t, m.Register(registry, storage))

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry")

	assert.Equal(t, []string{"start storage", "stop storage"}, j.all())
	assert.False(t, m.IsRunning(storage))
}

func TestManagerStopContinuesPastErrors(t *testing.T) {
	j := &journal{}
	storage := &fakeComponent{name: "storage", journal: j}
	server := &fakeComponent{name: "server", journal: j, stopErr: errors.New("shutdown failed")}

	m := NewManager()
	require.NoError(t, m.Register(storage))
	require.NoError(t, m.Register(server, storage))
	require.NoError(t, m.Start(context.Background()))

	require.NoError(t, m.Stop(context.Background()))
	assert.Equal(t, []string{"start storage", "start server", "stop server", "stop storage"}, j.all())
}

func TestManagerRegisterValidation(t *testing.T) {
	j := &journal{}
	m := NewManager()

	require.Error(t, m.Register(nil))
	require.Error(t, m.Register(&fakeComponent{name: "", journal: j}))

	a := &fakeComponent{name: "a", journal: j}
	require.NoError(t, m.Register(a))
	require.Error(t, m.Register(a), "duplicate registration")

	unknown := &fakeComponent{name: "unknown", journal: j}
	b := &fakeComponent{name: "b", journal: j}
	require.Error(t, m.Register(b, unknown), "unregistered dependency")
}

func TestManagerStartsIndependentComponentsInRegistrationOrder(t *testing.T) {
	j := &journal{}
	a := &fakeComponent{name: "a", journal: j}
	b := &fakeComponent{name: "b", journal: j}

	m := NewManager()
	require.NoError(t, m.Register(a))
	require.NoError(t, m.Register(b))
	require.NoError(t, m.Start(context.Background()))

	assert.Equal(t, []string{"start a", "start b"}, j.all())
}

func TestManagerSetShutdownTimeout(t *testing.T) {
	m := NewManager()
	m.SetShutdownTimeout(100 * time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, m.shutdownTimeout)
}
