package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/script-supervisor/internal/model"
)

const (
	resultStreamName = "SCRIPT_RESULTS"
	streamMaxAge     = 24 * time.Hour
	publishTimeout   = 5 * time.Second
)

// Publisher publishes execution results to NATS JetStream
type Publisher struct {
	logger *zap.Logger
	js     nats.JetStreamContext
	prefix string
	once   sync.Once
	err    error
}

// NewPublisher creates a publisher for subjects "<prefix>.<run_id>"
func NewPublisher(js nats.JetStreamContext, prefix string, logger *zap.Logger) *Publisher {
	return &Publisher{
		logger: logger.Named("result-publisher"),
		js:     js,
		prefix: prefix,
	}
}

// Subject returns the subject a run's result is published on
func (p *Publisher) Subject(runID string) string {
	return fmt.Sprintf("%s.%s", p.prefix, runID)
}

// Publish publishes the result, creating the stream on first use
func (p *Publisher) Publish(ctx context.Context, result *model.ExecutionResult) error {
	p.once.Do(func() { p.err = p.setupStream(ctx) })
	if p.err != nil {
		return p.err
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if _, err := p.js.Publish(p.Subject(result.RunID), data, nats.Context(ctx), nats.MsgId(result.RunID)); err != nil {
		return fmt.Errorf("failed to publish result: %w", err)
	}

	p.logger.Debug("Published result",
		zap.String("run_id", result.RunID),
		zap.String("outcome", string(result.Outcome)))
	return nil
}

func (p *Publisher) setupStream(ctx context.Context) error {
	_, err := p.js.StreamInfo(resultStreamName, nats.Context(ctx))
	if err == nil {
		return nil
	}
	if err != nats.ErrStreamNotFound {
		return fmt.Errorf("failed to get stream info: %w", err)
	}

	_, err = p.js.AddStream(&nats.StreamConfig{
		Name:       resultStreamName,
		Subjects:   []string{p.prefix + ".*"},
		Retention:  nats.LimitsPolicy,
		MaxAge:     streamMaxAge,
		MaxMsgs:    -1,
		Storage:    nats.FileStorage,
		Duplicates: time.Hour,
	}, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", resultStreamName, err)
	}

	p.logger.Info("Created stream", zap.String("name", resultStreamName))
	return nil
}

// Connect dials NATS and returns a JetStream context. The returned close
// func drains the connection.
func Connect(url, name string, logger *zap.Logger) (nats.JetStreamContext, func(), error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2 * time.Second),
		nats.Timeout(5 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	logger.Info("Connected to NATS", zap.String("url", nc.ConnectedUrl()))
	return js, func() { nc.Drain() }, nil
}
