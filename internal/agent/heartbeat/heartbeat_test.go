package heartbeat

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) handle(ctx context.Context, message string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, message)
	return "ack"
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func TestTick(t *testing.T) {
	ws := t.TempDir()
	rec := &recorder{}
	svc := New(ws, "", rec.handle)

	reply, err := svc.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, reply, "missing file is a no-op")

	require.NoError(t, os.WriteFile(filepath.Join(ws, FileName), []byte("  \n\t\n"), 0644))
	reply, err = svc.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, reply, "blank file is a no-op")
	assert.Equal(t, 0, rec.count())

	require.NoError(t, os.WriteFile(filepath.Join(ws, FileName), []byte("  check the inbox\n\n"), 0644))
	reply, err = svc.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ack", reply)
	assert.Equal(t, []string{"[heartbeat]   check the inbox"}, rec.msgs)
}

func TestStartStop(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, FileName), []byte("ping"), 0644))

	rec := &recorder{}
	svc := New(ws, "@every 1s", rec.handle)
	require.NoError(t, svc.Start(context.Background()))
	assert.Error(t, svc.Start(context.Background()), "double start")

	assert.Eventually(t, func() bool { return rec.count() > 0 }, 5*time.Second, 50*time.Millisecond)
	svc.Stop()
	svc.Stop()
}

func TestStartValidates(t *testing.T) {
	assert.Error(t, New(t.TempDir(), "not a schedule", func(context.Context, string) string { return "" }).Start(context.Background()))
	assert.Error(t, New(t.TempDir(), "", nil).Start(context.Background()))
}
