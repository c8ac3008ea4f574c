package push

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUpsertIsIdempotentAndRefreshesKeys(t *testing.T) {
	reg := NewRegistry(newTestDB(t))
	ctx := context.Background()

	first, err := reg.Upsert(ctx, SubscriptionInput{Endpoint: "https://push.example/a", P256DH: "k1", Auth: "a1", UserAgent: "firefox"})
	require.NoError(t, err)
	require.True(t, first.Active)

	second, err := reg.Upsert(ctx, SubscriptionInput{Endpoint: "https://push.example/a", P256DH: "k2", Auth: "a2", UserAgent: "firefox"})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "k2", second.P256DH)
	require.Equal(t, "a2", second.Auth)

	stats, err := reg.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, SubscriptionStats{Total: 1, Active: 1}, stats)
}

func TestUpsertReactivatesDeactivatedEndpoint(t *testing.T) {
	reg := NewRegistry(newTestDB(t))
	ctx := context.Background()
	base := time.Unix(1_790_000_000, 0)
	reg.nowFn = func() time.Time { return base }

	_, err := reg.Upsert(ctx, SubscriptionInput{Endpoint: "https://push.example/a", P256DH: "k", Auth: "a"})
	require.NoError(t, err)
	require.NoError(t, reg.Deactivate(ctx, "https://push.example/a"))

	active, err := reg.ListActive(ctx)
	require.NoError(t, err)
	require.Empty(t, active)

	reg.nowFn = func() time.Time { return base.Add(time.Hour) }
	sub, err := reg.Upsert(ctx, SubscriptionInput{Endpoint: "https://push.example/a", P256DH: "k", Auth: "a"})
	require.NoError(t, err)
	require.True(t, sub.Active)
	require.True(t, sub.LastUsed.Equal(base.Add(time.Hour)), "last_used = %v", sub.LastUsed)
}

func TestUpsertRejectsMissingFields(t *testing.T) {
	reg := NewRegistry(newTestDB(t))

	_, err := reg.Upsert(context.Background(), SubscriptionInput{Endpoint: "https://push.example/a", Auth: "a"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "keys.p256dh", verr.Field)
}

func TestDeactivateIsMonotonicAndToleratesUnknownEndpoints(t *testing.T) {
	reg := NewRegistry(newTestDB(t))
	ctx := context.Background()

	_, err := reg.Upsert(ctx, SubscriptionInput{Endpoint: "https://push.example/a", P256DH: "k", Auth: "a"})
	require.NoError(t, err)
	_, err = reg.Upsert(ctx, SubscriptionInput{Endpoint: "https://push.example/b", P256DH: "k", Auth: "a"})
	require.NoError(t, err)

	require.NoError(t, reg.Deactivate(ctx, "https://push.example/a"))
	require.NoError(t, reg.Deactivate(ctx, "https://push.example/a"))
	require.NoError(t, reg.Deactivate(ctx, "https://push.example/unknown"))

	active, err := reg.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "https://push.example/b", active[0].Endpoint)

	stats, err := reg.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.Total)
	require.Equal(t, int64(1), stats.Inactive)
}
