package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/script-supervisor/internal/model"
)

// startJetStream runs an embedded JetStream server for the test
func startJetStream(t *testing.T) nats.JetStreamContext {
	t.Helper()

	srv, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      server.RANDOM_PORT,
		NoLog:     true,
		NoSigs:    true,
		JetStream: true,
		StoreDir:  t.TempDir(),
	})
	require.NoError(t, err)

	go srv.Start()
	t.Cleanup(srv.Shutdown)
	require.True(t, srv.ReadyForConnections(10*time.Second), "embedded NATS did not start")

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	js, err := nc.JetStream(nats.MaxWait(5 * time.Second))
	require.NoError(t, err)
	return js
}

// nextResult reads the first stored result on subject
func nextResult(t *testing.T, js nats.JetStreamContext, subject string) model.ExecutionResult {
	t.Helper()

	sub, err := js.SubscribeSync(subject, nats.DeliverAll())
	require.NoError(t, err)
	defer sub.Unsubscribe()

	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)

	var result model.ExecutionResult
	require.NoError(t, json.Unmarshal(msg.Data, &result))
	return result
}

func TestPublisher_Publish(t *testing.T) {
	js := startJetStream(t)

	publisher := NewPublisher(js, "script.result", zaptest.NewLogger(t))

	result := model.ScriptFailure(3, "out", "err")
	result.RunID = "run-42"
	result.ScriptPath = "job.py"

	require.NoError(t, publisher.Publish(context.Background(), result))

	stream, err := js.StreamInfo(resultStreamName)
	require.NoError(t, err)
	assert.Equal(t, []string{"script.result.*"}, stream.Config.Subjects)

	assert.Equal(t, uint64(1), stream.State.Msgs)

	got := nextResult(t, js, publisher.Subject("run-42"))
	assert.Equal(t, "run-42", got.RunID)
	assert.Equal(t, model.OutcomeScriptFailure, got.Outcome)
	assert.Equal(t, 3, got.ExitCode)
	assert.False(t, got.Succeeded)
}

func TestPublisher_DeduplicatesByRunID(t *testing.T) {
	js := startJetStream(t)

	publisher := NewPublisher(js, "script.result", zaptest.NewLogger(t))

	result := model.Success("ok\n", "")
	result.RunID = "run-1"

	require.NoError(t, publisher.Publish(context.Background(), result))
	require.NoError(t, publisher.Publish(context.Background(), result))

	stream, err := js.StreamInfo(resultStreamName)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stream.State.Msgs)
}
