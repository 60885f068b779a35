//go:build integration

package e2e

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/nidhogg/cognitive-core/internal/core"
	"github.com/nidhogg/cognitive-core/internal/notify"
	"github.com/nidhogg/cognitive-core/internal/persist"
	"github.com/nidhogg/cognitive-core/internal/state"
	pgstore "github.com/nidhogg/cognitive-core/internal/store"
	"github.com/nidhogg/cognitive-core/migrations"
)

// Shared containers, started once by TestMain.
var (
	testLogger   *zap.Logger
	testPGStore  *pgstore.Store
	testRedisURL string
)

// startPostgres starts a PostgreSQL testcontainer, returns DSN + cleanup func.
func startPostgres(ctx context.Context) (string, func(), error) {
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("core_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start postgres: %w", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("pg connection string: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return dsn, cleanup, nil
}

// startRedis starts a Redis testcontainer, returns URL + cleanup func.
func startRedis(ctx context.Context) (string, func(), error) {
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return "", nil, fmt.Errorf("start redis: %w", err)
	}
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("redis endpoint: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return "redis://" + endpoint, cleanup, nil
}

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()
	testLogger, _ = zap.NewDevelopment()

	pgDSN, pgCleanup, err := startPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres: %v\n", err)
		return 1
	}
	defer pgCleanup()

	testPGStore, err = pgstore.New(pgDSN, testLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pg store: %v\n", err)
		return 1
	}
	defer testPGStore.Close()

	if err := testPGStore.Migrate(ctx, migrations.FS); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		return 1
	}

	var redisCleanup func()
	testRedisURL, redisCleanup, err = startRedis(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		return 1
	}
	defer redisCleanup()

	return m.Run()
}

func TestMigrateIsIdempotent(t *testing.T) {
	require.NoError(t, testPGStore.Migrate(context.Background(), migrations.FS))
}

func TestArchiveRecordsEveryCommit(t *testing.T) {
	ctx := context.Background()
	file := persist.NewFile(filepath.Join(t.TempDir(), "core.json"), testLogger)
	store := state.New(file.Load(), file, testLogger)
	store.SetArchiver(testPGStore)

	_, err := store.RecordConversation(ctx, "archive-c1", []state.Message{{Sender: "user", Content: "hi"}})
	require.NoError(t, err)
	_, err = store.ActivateAwareness(ctx, "archive-test")
	require.NoError(t, err)

	snaps, err := testPGStore.ListSnapshots(ctx, 2)
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	latest := snaps[0]
	assert.Equal(t, "activate_awareness", latest.Reason)
	assert.Equal(t, core.SchemaVersion, latest.SchemaVersion)
	assert.Equal(t, int64(1), latest.AwarenessLevel)
	require.NotNil(t, latest.State)
	assert.Equal(t, "archive-test", latest.State.SystemState.LastActivationSource)
	assert.NotEmpty(t, latest.ID)

	assert.Equal(t, "record_conversation", snaps[1].Reason)
	assert.False(t, latest.CreatedAt.Before(snaps[1].CreatedAt))
}

func TestRedisMirrorRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mirror, err := notify.NewRedisMirror(testRedisURL, "cognitive:test", 100, testLogger)
	require.NoError(t, err)
	defer mirror.Close()

	mgr := notify.NewManager(notify.DefaultBuffer, testLogger)
	mgr.AddMirror(mirror)
	go mgr.Run(ctx)

	tail := mirror.Tail(ctx)
	// Tail starts at the stream end; give XREAD a moment to block.
	time.Sleep(200 * time.Millisecond)

	file := persist.NewFile(filepath.Join(t.TempDir(), "core.json"), testLogger)
	store := state.New(file.Load(), file, testLogger)
	store.SetPublisher(mgr)
	_, err = store.ActivateAwareness(ctx, "mirror-test")
	require.NoError(t, err)

	select {
	case u, ok := <-tail:
		require.True(t, ok, "tail closed early")
		assert.Equal(t, notify.UpdateAwarenessActivated, u.UpdateType)
		assert.Equal(t, notify.ComponentAwareness, u.Component)
		assert.NotEmpty(t, u.Payload)
	case <-ctx.Done():
		t.Fatal("no update mirrored to redis")
	}
}
