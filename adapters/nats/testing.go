package nats

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testImage = "nats:latest"

// NewTestServer runs a JetStream enabled NATS container for the lifetime of
// t and returns a shared connector to it. It skips t under -short.
func NewTestServer(t *testing.T) Connector {
	t.Helper()
	if testing.Short() {
		t.Skip("needs a nats container")
	}

	ctx := t.Context()
	server, err := testcontainers.Run(
		ctx, testImage,
		testcontainers.WithCmd("-js"),
		testcontainers.WithExposedPorts("4222/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("4222/tcp"),
			wait.ForLog("Server is ready"),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(server); err != nil {
			t.Errorf("terminate %s: %v", testImage, err)
		}
	})

	endpoint, err := server.PortEndpoint(ctx, "4222/tcp", "nats")
	require.NoError(t, err)
	t.Logf("%s listening on %s", testImage, endpoint)
	return ReuseConnection(ConnectURL(endpoint))
}

// NewTestKvStore opens bucket on connect and closes it when t ends.
func NewTestKvStore(t *testing.T, connect Connector, bucket string) *KvStore {
	t.Helper()
	store, err := NewKvStore(t.Context(), KvConfig{Connect: connect, Bucket: bucket})
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}
