package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newFakeClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), "menu-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestPublishSendsJSON(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, srv := newFakeClient(t)
	_, err := client.CreateTopic(ctx, "menu-crawl-runs")
	require.NoError(t, err)

	pub := New(client, "menu-crawl-runs")
	defer pub.Close()

	id, err := pub.Publish(ctx, "", map[string]any{"run_id": "run-1", "status": "success"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "application/json", msgs[0].Attributes["content_type"])

	var got map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, "run-1", got["run_id"])
	require.Equal(t, "success", got["status"])
}

func TestPublishUnknownTopic(t *testing.T) {
	t.Parallel()

	client, _ := newFakeClient(t)
	pub := New(client, "")
	defer pub.Close()

	_, err := pub.Publish(context.Background(), "missing", "x")
	require.Error(t, err)

	_, err = pub.Publish(context.Background(), "", "x")
	require.ErrorContains(t, err, "topic is required")
}

func TestPublishRequiresClient(t *testing.T) {
	t.Parallel()

	_, err := New(nil, "t").Publish(context.Background(), "", "x")
	require.Error(t, err)
}

func TestPublishRejectsUnmarshalablePayload(t *testing.T) {
	t.Parallel()

	client, _ := newFakeClient(t)
	pub := New(client, "t")
	_, err := pub.Publish(context.Background(), "", make(chan int))
	require.ErrorContains(t, err, "marshal payload")
}
