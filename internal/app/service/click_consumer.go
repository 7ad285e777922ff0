package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/PowerLink/internal/app/model"
	"github.com/sifan077/PowerLink/internal/app/repository"
	metrics "github.com/sifan077/PowerLink/internal/infra/prometheus"
	"go.uber.org/zap"
)

const (
	clickFetchBatch   = 10
	clickFetchMaxWait = 2 * time.Second
	clickApplyTimeout = 5 * time.Second
)

var errMalformedClick = errors.New("malformed click event")

// ClickConsumer drains click events from JetStream into atomic counter
// increments. Delivery is at least once.
type ClickConsumer struct {
	js     nats.JetStreamContext
	repo   repository.LinkRepository
	logger *zap.Logger
}

// NewClickConsumer creates a new click event consumer.
func NewClickConsumer(js nats.JetStreamContext, repo repository.LinkRepository, logger *zap.Logger) *ClickConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClickConsumer{js: js, repo: repo, logger: logger}
}

// Run binds to the durable consumer and processes batches until ctx is done.
// The stream and consumer must already exist.
func (c *ClickConsumer) Run(ctx context.Context) error {
	sub, err := c.js.PullSubscribe(model.ClickStreamSubject, model.ClickConsumerName,
		nats.Bind(model.ClickStreamName, model.ClickConsumerName))
	if err != nil {
		return fmt.Errorf("subscribe to click stream: %w", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	c.logger.Info("click consumer started")
	for {
		if ctx.Err() != nil {
			c.logger.Info("click consumer stopped")
			return nil
		}

		msgs, err := sub.Fetch(clickFetchBatch, nats.MaxWait(clickFetchMaxWait))
		switch {
		case err == nil, errors.Is(err, nats.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		case errors.Is(err, nats.ErrConnectionClosed), errors.Is(err, nats.ErrBadSubscription):
			return fmt.Errorf("fetch click events: %w", err)
		default:
			c.logger.Error("failed to fetch click events", zap.Error(err))
			continue
		}

		for _, msg := range msgs {
			err := c.handle(ctx, msg.Data)
			switch {
			case errors.Is(err, errMalformedClick):
				_ = msg.Term()
				continue
			case err != nil:
				_ = msg.Nak()
				continue
			}
			_ = msg.Ack()
		}
	}
}

// handle applies one event. Events for deleted links count as handled;
// undecodable ones are reported as errMalformedClick so they are not redelivered.
func (c *ClickConsumer) handle(ctx context.Context, data []byte) error {
	var event model.ClickEvent
	if err := json.Unmarshal(data, &event); err != nil {
		c.logger.Error("failed to unmarshal click event", zap.Error(err))
		return fmt.Errorf("%w: %v", errMalformedClick, err)
	}

	applyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), clickApplyTimeout)
	defer cancel()

	err := c.repo.IncrementClicks(applyCtx, event.LinkID)
	switch {
	case err == nil:
		c.logger.Debug("click recorded",
			zap.String("id", event.ID),
			zap.String("link_code", event.LinkCode),
			zap.Time("timestamp", event.Timestamp),
		)
		return nil
	case errors.Is(err, repository.ErrLinkNotFound):
		c.logger.Debug("dropping click for missing link", zap.String("link_code", event.LinkCode))
		return nil
	default:
		metrics.ClickFailures.WithLabelValues("consume").Inc()
		c.logger.Error("failed to record click event",
			zap.String("id", event.ID),
			zap.String("link_code", event.LinkCode),
			zap.Error(err),
		)
		return err
	}
}
