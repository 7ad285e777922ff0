package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sifan077/PowerLink/internal/app/model"
	metrics "github.com/sifan077/PowerLink/internal/infra/prometheus"
	"go.uber.org/zap"
)

// StreamPublisher is the subset of nats.JetStreamContext used for publishing.
type StreamPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

const defaultPublishTimeout = 2 * time.Second

// ClickPublisher publishes click events to NATS JetStream. When publishing
// fails the click is handed to the fallback recorder instead of being lost.
type ClickPublisher struct {
	js       StreamPublisher
	fallback ClickRecorder
	logger   *zap.Logger
	now      func() time.Time
	timeout  time.Duration
	queue    *clickQueue
}

// NewClickPublisher creates a new click event publisher.
// Publishing runs on a bounded worker pool; opts.Timeout bounds each publish.
func NewClickPublisher(js StreamPublisher, fallback ClickRecorder, logger *zap.Logger, opts ClickQueueOptions) *ClickPublisher {
	if fallback == nil {
		fallback = discardClicks{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultPublishTimeout
	}
	opts = opts.withDefaults()
	return &ClickPublisher{
		js:       js,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
		timeout:  opts.Timeout,
		queue:    newClickQueue(opts.Workers, opts.Size),
	}
}

func (p *ClickPublisher) Record(ctx context.Context, link *model.Link) {
	visitor := VisitorFromContext(ctx)
	event := model.ClickEvent{
		ID:        uuid.NewString(),
		LinkID:    link.ID,
		LinkCode:  link.ShortCode,
		IP:        visitor.IP,
		UserAgent: visitor.UserAgent,
		Timestamp: p.now().UTC(),
	}
	snapshot := *link
	detached := context.WithoutCancel(ctx)

	accepted := p.queue.submit(func() {
		ctx, cancel := context.WithTimeout(detached, p.timeout)
		defer cancel()

		if err := p.publish(ctx, event); err != nil {
			metrics.ClickFailures.WithLabelValues("publish").Inc()
			p.logger.Warn("failed to publish click event, recording directly",
				zap.String("id", event.ID),
				zap.String("code", event.LinkCode),
				zap.Error(err),
			)
			p.fallback.Record(detached, &snapshot)
		}
	})
	if !accepted {
		p.logger.Warn("click publish queue full, dropping click", zap.String("code", event.LinkCode))
	}
}

func (p *ClickPublisher) publish(ctx context.Context, event model.ClickEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	// The event id doubles as the JetStream dedup id.
	_, err = p.js.Publish(model.ClickStreamSubject, data, nats.Context(ctx), nats.MsgId(event.ID))
	return err
}

// Wait blocks until in-flight publishes have either succeeded or been handed
// to the fallback.
func (p *ClickPublisher) Wait() {
	p.queue.wait()
}

// Close drains queued publishes and stops the workers. Close the fallback
// afterwards so late hand-offs are still recorded.
func (p *ClickPublisher) Close() {
	p.queue.close()
}
