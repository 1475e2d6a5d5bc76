package replay

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestMemoryGuard_Claim(t *testing.T) {
	g := NewMemoryGuard()
	now := time.Unix(1_700_000_000, 0)
	g.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := g.Claim(ctx, "webhook:ds:1", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = g.Claim(ctx, "webhook:ds:1", 5*time.Minute)
	assert.False(t, ok, "second claim within ttl must fail")

	ok, _ = g.Claim(ctx, "webhook:ds:2", 5*time.Minute)
	assert.True(t, ok, "distinct keys are independent")

	now = now.Add(5 * time.Minute)
	ok, _ = g.Claim(ctx, "webhook:ds:1", 5*time.Minute)
	assert.True(t, ok, "key is reclaimable after expiry")
}

func TestRedisGuard_Claim(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := NewClient(ctx, fmt.Sprintf("%s:%s", host, port.Port()), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	g := NewRedisGuard(client)

	ok, err := g.Claim(ctx, "webhook:ds:abc", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Claim(ctx, "webhook:ds:abc", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ttl, err := client.TTL(ctx, "webhook:ds:abc").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
