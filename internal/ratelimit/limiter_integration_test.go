//go:build integration

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestLimiter_Redis(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()
	client := startRedis(t)

	t.Run("ip window", func(t *testing.T) {
		l := NewLimiter(client, 3, time.Minute, time.Minute)

		for i := 0; i < 3; i++ {
			exceeded, err := l.CheckIPRateLimitWithPurpose(ctx, "10.0.0.1", "login")
			require.NoError(t, err)
			assert.False(t, exceeded)
			require.NoError(t, l.RecordIPRequestWithPurpose(ctx, "10.0.0.1", "login"))
		}

		exceeded, err := l.CheckIPRateLimitWithPurpose(ctx, "10.0.0.1", "login")
		require.NoError(t, err)
		assert.True(t, exceeded)

		exceeded, err = l.CheckIPRateLimitWithPurpose(ctx, "10.0.0.1", "register")
		require.NoError(t, err)
		assert.False(t, exceeded, "purposes are counted separately")

		ttl, err := client.TTL(ctx, ipKey("login", "10.0.0.1")).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
	})

	t.Run("window expires", func(t *testing.T) {
		l := NewLimiter(client, 1, time.Second, time.Minute)
		require.NoError(t, l.RecordIPRequestWithPurpose(ctx, "10.0.0.2", "login"))

		assert.Eventually(t, func() bool {
			exceeded, err := l.CheckIPRateLimitWithPurpose(ctx, "10.0.0.2", "login")
			return err == nil && !exceeded
		}, 5*time.Second, 100*time.Millisecond)
	})

	t.Run("email cooldown", func(t *testing.T) {
		l := NewLimiter(client, 10, time.Minute, time.Minute)

		onCooldown, err := l.CheckEmailCooldown(ctx, "a@a.com")
		require.NoError(t, err)
		assert.False(t, onCooldown)

		require.NoError(t, l.SetEmailCooldown(ctx, "a@a.com"))

		onCooldown, err = l.CheckEmailCooldown(ctx, "A@A.com")
		require.NoError(t, err)
		assert.True(t, onCooldown)
	})
}
