package facade

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/teawater/uksmd/pkg/ctlapi"
	"github.com/teawater/uksmd/pkg/uksm"
)

func dialUnix(t *testing.T, socket string) *grpc.ClientConn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := grpc.DialContext(ctx, socket, grpc.WithInsecure(), grpc.WithBlock(),
		grpc.WithContextDialer(func(ctx context.Context, addr string) (net.Conn, error) {
			return net.Dial("unix", addr)
		}),
	)
	require.NoError(t, err)
	return conn
}

func waitIdle(t *testing.T, sched *uksm.Scheduler) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sched.Idle() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("scheduler did not go idle in time")
}

func TestServerAddRefreshMergeDelRoundTrip(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "uksmd.sock")

	sched := uksm.NewScheduler(newNoopGateway())
	srv := NewServer(sched)
	require.NoError(t, srv.Start(socket))
	defer srv.Stop()

	info, err := os.Stat(socket)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	conn := dialUnix(t, socket)
	defer conn.Close()
	client := ctlapi.NewControlClient(conn)
	ctx := context.Background()

	pid := int64(os.Getpid())
	_, err = client.Add(ctx, &ctlapi.AddRequest{Pid: pid})
	require.NoError(t, err)
	waitIdle(t, sched)

	_, err = client.Add(ctx, &ctlapi.AddRequest{Pid: pid})
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.InvalidArgument, st.Code())

	_, err = client.Refresh(ctx, &ctlapi.RefreshRequest{})
	require.NoError(t, err)

	_, err = client.Merge(ctx, &ctlapi.MergeRequest{})
	require.NoError(t, err)
	waitIdle(t, sched)

	reply, err := client.Status(ctx, &ctlapi.StatusRequest{Pid: pid})
	require.NoError(t, err)
	assert.True(t, reply.Known)

	_, err = client.Del(ctx, &ctlapi.DelRequest{Pid: pid})
	require.NoError(t, err)
	waitIdle(t, sched)

	_, err = client.Del(ctx, &ctlapi.DelRequest{Pid: pid})
	require.Error(t, err)
}

// noopGateway is a KernelGateway that never actually touches the kernel,
// used so facade tests exercise the real grpc/unix-socket path without
// requiring a uksm-enabled kernel.
type noopGateway struct{}

func newNoopGateway() *noopGateway { return &noopGateway{} }

func (noopGateway) Probe() error    { return nil }
func (noopGateway) DrainLRU() error { return nil }
func (noopGateway) ReadPagemap(pid int, start, end uint64) ([]*uksm.PagemapEntry, error) {
	return nil, nil
}
func (noopGateway) CompareAndMerge(a, b uksm.PidAddr) (uksm.MergeOutcome, error) {
	return uksm.NotIdentical, nil
}
func (noopGateway) Unmerge(a uksm.PidAddr) error { return nil }
