package processing

import (
	"context"
	"net"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

func startWorker(t *testing.T) *RemoteWorker {
	lis := bufconn.Listen(1024 * 1024)
	reg := NewRegistry()
	require.NoError(t, RegisterBuiltins(reg, "remote-"))
	pool := CreateProcessPool(2, reg)

	s := grpc.NewServer()
	RegisterWorkerServer(s, reg, pool)
	go s.Serve(lis)
	t.Cleanup(func() {
		s.Stop()
		pool.Close()
	})

	w, err := DialWorker("bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

func TestRemoteWorker(t *testing.T) {
	w := startWorker(t)
	ctx := context.Background()

	authorities, err := w.Describe(ctx)
	require.NoError(t, err)
	require.Len(t, authorities, 3)
	require.Len(t, authorities["remote-math"], 3)

	out, err := w.Execute(ctx, "remote-math", "add", map[string]interface{}{"a": 1, "b": 2})
	require.NoError(t, err)
	require.Equal(t, 3.0, out["result"])

	_, err = w.Execute(ctx, "remote-math", "divide", nil)
	require.True(t, errors.Is(err, errors.NotFound), "got %v", err)

	_, err = w.Execute(ctx, "remote-math", "add", map[string]interface{}{"a": 1})
	require.True(t, errors.Is(err, errors.NotValid), "got %v", err)
}

func TestRegisterRemoteWorkers(t *testing.T) {
	lis := bufconn.Listen(1024 * 1024)
	reg := NewRegistry()
	require.NoError(t, RegisterBuiltins(reg, "remote-"))
	pool := CreateProcessPool(1, reg)
	s := grpc.NewServer()
	RegisterWorkerServer(s, reg, pool)
	go s.Serve(lis)
	defer s.Stop()

	local := NewRegistry()
	require.NoError(t, RegisterBuiltins(local, ""))
	workers := RegisterRemoteWorkers(context.Background(), local, []string{"bufnet"},
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.Len(t, workers, 1)
	defer workers[0].Close()

	require.Len(t, local.Authorities(), 6)

	dto, err := ListRegistry(context.Background(), local, "remote-util")
	require.NoError(t, err)
	require.Len(t, dto.Processes, 2)

	out, err := local.Execute(context.Background(), "remote-util", "echo", map[string]interface{}{"msg": "hi"}, nil)
	require.NoError(t, err)
	require.Equal(t, "hi", out["msg"])
}
