package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lifecycleFake tracks the calls Component.Start is expected to make.
type lifecycleFake struct {
	*fakeClient
	connected   bool
	initialized bool
	closed      bool
	connectErr  error
	initErr     error
}

func (l *lifecycleFake) Connect(ctx context.Context) error {
	l.connected = true
	return l.connectErr
}

func (l *lifecycleFake) InitializeSchema(ctx context.Context) error {
	l.initialized = true
	return l.initErr
}

func (l *lifecycleFake) Close() error {
	l.closed = true
	return nil
}

func TestComponentStartPreparesGraph(t *testing.T) {
	fake := &lifecycleFake{fakeClient: newFakeClient()}
	fake.readFn = rootReadFn(nil)

	component := NewComponent(fake)
	require.NoError(t, component.Start(context.Background()))

	assert.True(t, fake.connected)
	assert.True(t, fake.initialized)
	assert.Equal(t, []string{"root_create"}, writeNames(fake.fakeClient))
	assert.Equal(t, "storage", component.Name())
	assert.Same(t, Client(fake), component.Client())
}

func TestComponentStartAppliesPendingMigrations(t *testing.T) {
	fake := &lifecycleFake{fakeClient: newFakeClient()}
	fake.readFn = rootReadFn([][]interface{}{{"root-1", "0.2.0"}})

	component := NewComponent(fake)
	require.NoError(t, component.Start(context.Background()))

	assert.Contains(t, writeNames(fake.fakeClient), "migrate_edge_branch_level")
}

func TestComponentStartFailsOnConnectError(t *testing.T) {
	fake := &lifecycleFake{fakeClient: newFakeClient(), connectErr: assert.AnError}

	component := NewComponent(fake)
	require.Error(t, component.Start(context.Background()))
	assert.False(t, fake.initialized)
}

func TestComponentStopClosesClient(t *testing.T) {
	fake := &lifecycleFake{fakeClient: newFakeClient()}

	component := NewComponent(fake)
	require.NoError(t, component.Stop(context.Background()))
	assert.True(t, fake.closed)
}
