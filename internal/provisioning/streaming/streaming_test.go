package streaming

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

func TestStreamerBroadcast(t *testing.T) {
	s := NewProgressStreamer()
	runA, runB := uuid.New(), uuid.New()

	chA := s.Subscribe(runA)
	chAll := s.SubscribeAll()

	s.Broadcast(types.Progress{RunID: runB, Percent: 10})
	s.Broadcast(types.Progress{RunID: runA, Percent: 20, State: types.RunExecuting})

	got := <-chA
	assert.Equal(t, 20, got.Percent)
	assert.Equal(t, runB, (<-chAll).RunID)
	assert.Equal(t, runA, (<-chAll).RunID)

	s.Broadcast(types.Progress{RunID: runA, Percent: 100, State: types.RunReported})
	final := <-chA
	assert.Equal(t, types.RunReported, final.State)
	_, open := <-chA
	assert.False(t, open)

	// unsubscribing after the run closed the channel is a no-op
	s.Unsubscribe(runA, chA)
	s.UnsubscribeAll(chAll)
	_, open = <-chAll
	assert.False(t, open)
}

func TestStreamerDropsWhenFull(t *testing.T) {
	s := NewProgressStreamer()
	run := uuid.New()
	ch := s.Subscribe(run)

	for i := 0; i < 150; i++ {
		s.Broadcast(types.Progress{RunID: run, Percent: i % 100})
	}
	assert.Len(t, ch, 100)
}

type runTable struct {
	mu   sync.Mutex
	runs map[uuid.UUID]types.Progress
}

func (r *runTable) RunProgress(id uuid.UUID) (types.Progress, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.runs[id]
	return p, ok
}

func startServer(t *testing.T, svc *ProgressService) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 16)
	server := grpc.NewServer()
	svc.Register(server)
	go server.Serve(lis)
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWatchProgress(t *testing.T) {
	streamer := NewProgressStreamer()
	run := uuid.New()
	runs := &runTable{runs: map[uuid.UUID]types.Progress{
		run: {RunID: run, State: types.RunExecuting, Percent: 5, Operation: "Deleting scenes"},
	}}
	conn := startServer(t, NewProgressService(streamer, runs))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got []types.Progress
	done := make(chan error, 1)
	go func() {
		done <- WatchProgress(ctx, conn, run, func(p types.Progress) { got = append(got, p) })
	}()

	// wait until the server sent the snapshot and subscribed
	require.Eventually(t, func() bool {
		streamer.mu.RLock()
		defer streamer.mu.RUnlock()
		return len(streamer.subscribers[run]) == 1
	}, 2*time.Second, 10*time.Millisecond)

	streamer.Broadcast(types.Progress{RunID: run, State: types.RunExecuting, Percent: 50, Operation: "Sending scenes"})
	streamer.Broadcast(types.Progress{RunID: run, State: types.RunReported, Percent: 100,
		Summary: &types.ReportSummary{Succeeded: 3, Failed: 1}})

	require.NoError(t, <-done)
	require.Len(t, got, 3)
	assert.Equal(t, 5, got[0].Percent)
	assert.Equal(t, "Sending scenes", got[1].Operation)
	assert.Equal(t, types.RunReported, got[2].State)
	require.NotNil(t, got[2].Summary)
	assert.Equal(t, 1, got[2].Summary.Failed)
}

func TestWatchProgressFinishedRun(t *testing.T) {
	run := uuid.New()
	runs := &runTable{runs: map[uuid.UUID]types.Progress{
		run: {RunID: run, State: types.RunReported, Percent: 100},
	}}
	conn := startServer(t, NewProgressService(NewProgressStreamer(), runs))

	var got []types.Progress
	err := WatchProgress(context.Background(), conn, run, func(p types.Progress) { got = append(got, p) })
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 100, got[0].Percent)
}

func TestWatchProgressUnknownRun(t *testing.T) {
	conn := startServer(t, NewProgressService(NewProgressStreamer(), &runTable{runs: map[uuid.UUID]types.Progress{}}))

	err := WatchProgress(context.Background(), conn, uuid.New(), func(types.Progress) {})
	assert.Equal(t, codes.NotFound, status.Code(err))
}
