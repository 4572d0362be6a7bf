package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "ratelimit:ip:login:203.0.113.7", ipKey("login", "203.0.113.7"))
	assert.Equal(t, "ratelimit:email:a@a.com", emailKey("  A@a.com "))
}

func TestNoop(t *testing.T) {
	ctx := context.Background()
	var n Noop

	for i := 0; i < 100; i++ {
		assert.NoError(t, n.RecordIPRequestWithPurpose(ctx, "1.2.3.4", "login"))
	}
	exceeded, err := n.CheckIPRateLimitWithPurpose(ctx, "1.2.3.4", "login")
	assert.NoError(t, err)
	assert.False(t, exceeded)

	assert.NoError(t, n.SetEmailCooldown(ctx, "a@a.com"))
	onCooldown, err := n.CheckEmailCooldown(ctx, "a@a.com")
	assert.NoError(t, err)
	assert.False(t, onCooldown)
}
