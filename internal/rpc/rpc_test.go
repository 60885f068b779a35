package rpc

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/nidhogg/cognitive-core/internal/core"
	"github.com/nidhogg/cognitive-core/internal/notify"
	"github.com/nidhogg/cognitive-core/internal/persist"
	"github.com/nidhogg/cognitive-core/internal/service"
	"github.com/nidhogg/cognitive-core/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type harness struct {
	client *Client
	mgr    *notify.Manager
}

func startServer(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	file := persist.NewFile(filepath.Join(t.TempDir(), "core.json"), logger)
	store := state.New(file.Load(), file, logger)
	mgr := notify.NewManager(8, logger)
	store.SetPublisher(mgr)
	svc := service.New(store, mgr, time.Hour, logger)

	lis := bufconn.Listen(1 << 20)
	srv := NewServerWithListener(lis, svc, Options{MaxConcurrentStreams: 16}, logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		require.NoError(t, <-done)
	})
	return &harness{client: NewClient(conn), mgr: mgr}
}

func TestHealthServing(t *testing.T) {
	h := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hc := grpc_health_v1.NewHealthClient(h.client.Conn())
	for _, svc := range []string{"", ServiceName} {
		resp, err := hc.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: svc})
		require.NoError(t, err)
		assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.GetStatus())
	}
}

func TestUnaryRoundTrip(t *testing.T) {
	h := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := h.client.GetCognitiveCore(ctx, &service.GetRequest{ClientID: "cli"})
	require.NoError(t, err)
	assert.Equal(t, core.SchemaVersion, got.SchemaVersion)
	assert.Equal(t, core.StatusInitializing, got.SystemState.CurrentStatus)

	src := core.Initialize(time.Now())
	src.AwarenessMatrix.AwarenessLevel = 3
	upd, err := h.client.UpdateCognitiveCore(ctx, &service.UpdateRequest{
		Core:           src,
		PartialUpdate:  true,
		FieldsToUpdate: []string{string(core.PathAwarenessLevel)},
		ClientID:       "cli",
	})
	require.NoError(t, err)
	assert.True(t, upd.Success, upd.Message)

	rec, err := h.client.RecordConversation(ctx, &service.RecordConversationRequest{
		ConversationID: "c1",
		Messages:       []state.Message{{Sender: "user", Content: "hello there"}},
	})
	require.NoError(t, err)
	assert.True(t, rec.Success)
	assert.Equal(t, "c1", rec.ConversationID)

	act, err := h.client.ActivateAwareness(ctx, &service.ActivateRequest{ClientID: "cli", ActivationTrigger: "wake"})
	require.NoError(t, err)
	assert.True(t, act.Success)
	assert.Equal(t, int64(4), act.ActivationLevel)
	assert.Equal(t, string(core.StatusActive), act.AwarenessState)

	q, err := h.client.QueryMemory(ctx, &service.QueryRequest{QueryString: "nothing matches this"})
	require.NoError(t, err)
	assert.Equal(t, 0, q.TotalMatches)
	assert.NotNil(t, q.Fragments)
}

func TestUpdateRejectionIsNotAnRPCError(t *testing.T) {
	h := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := h.client.UpdateCognitiveCore(ctx, &service.UpdateRequest{
		Core:           core.Initialize(time.Now()),
		PartialUpdate:  true,
		FieldsToUpdate: []string{"no.such.path"},
	})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "no.such.path")
}

func TestStreamUpdatesDeliversEvents(t *testing.T) {
	h := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := h.client.StreamUpdates(ctx, &service.StreamRequest{
		ClientID:    "viewer",
		UpdateTypes: []string{notify.UpdateAwarenessActivated},
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(h.mgr.Subscribers()) == 1 },
		2*time.Second, 5*time.Millisecond)

	_, err = h.client.RecordConversation(ctx, &service.RecordConversationRequest{
		ConversationID: "c1",
		Messages:       []state.Message{{Sender: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	_, err = h.client.ActivateAwareness(ctx, &service.ActivateRequest{ClientID: "cli", ActivationTrigger: "wake"})
	require.NoError(t, err)

	u, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, notify.UpdateAwarenessActivated, u.UpdateType)
	assert.Equal(t, notify.ComponentAwareness, u.Component)
	assert.NotEmpty(t, u.UpdateID)
}

func TestStreamUpdatesRequiresClientID(t *testing.T) {
	h := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := h.client.StreamUpdates(ctx, &service.StreamRequest{})
	require.NoError(t, err)
	_, err = stream.Recv()
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
