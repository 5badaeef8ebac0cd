//go:build integration

package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/fathima-sithara/chatlist-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) string {
	t.Helper()
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "6379")
	require.NoError(t, err)
	return host + ":" + port.Port()
}

func TestSummaryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, err := NewRedis(ctx, RedisConfig{Addr: startRedis(t)})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Get(ctx, "A")
	assert.ErrorIs(t, err, ErrMiss)

	name := "Bea"
	in := []domain.ConversationSummary{{
		CounterpartID:      "B",
		CounterpartName:    &name,
		LastMessageID:      "m2",
		LastMessageContent: "hey",
		LastMessageAt:      time.Date(2024, 3, 10, 9, 2, 0, 0, time.UTC),
	}}
	require.NoError(t, c.Set(ctx, "A", in, time.Minute))

	got, err := c.Get(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, in, got)

	require.NoError(t, c.Delete(ctx, "A", "B"))
	_, err = c.Get(ctx, "A")
	assert.ErrorIs(t, err, ErrMiss)
}
