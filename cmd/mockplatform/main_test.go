package main

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yeenbean/pauljac3-mastodon-bot/internal/platform/bluesky"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/platform/mastodon"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/platform/twitter"
)

// the adapters must be able to run a full cycle against the stub
func TestAdaptersAgainstStub(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	srv := httptest.NewServer(newRouter(zap.New(core)))
	defer srv.Close()
	ctx := context.Background()

	m := mastodon.New(mastodon.Config{URL: srv.URL, AccessToken: "x"}, zap.NewNop())
	require.NoError(t, m.Authenticate(ctx))
	require.NoError(t, m.PostMessage(ctx, "hello fedi"))
	n, err := m.UnseenCount(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	require.NoError(t, m.MarkAllSeen(ctx))

	b := bluesky.New(bluesky.Config{URL: srv.URL, Identifier: "id", Password: "pw"}, zap.NewNop())
	require.NoError(t, b.Authenticate(ctx))
	require.NoError(t, b.PostMessage(ctx, "hello sky"))
	list, err := b.ListNotifications(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, list)

	tw := twitter.New(twitter.Config{URL: srv.URL, APIKey: "k", APISecret: "s", AccessToken: "t", AccessTokenSecret: "ts"}, zap.NewNop())
	require.NoError(t, tw.Authenticate(ctx))
	require.NoError(t, tw.PostMessage(ctx, "hello x"))

	// status, clear, session, record, tweet
	require.Equal(t, 5, logs.FilterMessage("write").Len())
	require.Contains(t, logs.FilterMessage("write").All()[0].ContextMap()["body"], "hello fedi")
}
