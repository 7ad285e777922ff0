package service

import (
	"context"
	"time"

	"github.com/sifan077/PowerLink/internal/app/model"
	"github.com/sifan077/PowerLink/internal/app/repository"
	metrics "github.com/sifan077/PowerLink/internal/infra/prometheus"
	"go.uber.org/zap"
)

// ClickRecorder counts a redirect through link. Implementations must return
// without waiting for the count to be persisted.
type ClickRecorder interface {
	Record(ctx context.Context, link *model.Link)
}

// Visitor describes who followed a link.
type Visitor struct {
	IP        string
	UserAgent string
}

type visitorKey struct{}

// WithVisitor attaches visitor details to ctx for click recording.
func WithVisitor(ctx context.Context, v Visitor) context.Context {
	return context.WithValue(ctx, visitorKey{}, v)
}

// VisitorFromContext returns the visitor stored by WithVisitor, if any.
func VisitorFromContext(ctx context.Context) Visitor {
	v, _ := ctx.Value(visitorKey{}).(Visitor)
	return v
}

type discardClicks struct{}

func (discardClicks) Record(context.Context, *model.Link) {}

// AsyncClickRecorder increments the counter on a bounded worker pool, so the
// request that triggered it may finish or be cancelled first.
type AsyncClickRecorder struct {
	repo    repository.LinkRepository
	logger  *zap.Logger
	timeout time.Duration
	queue   *clickQueue
}

// NewAsyncClickRecorder returns a recorder that issues IncrementClicks itself.
func NewAsyncClickRecorder(repo repository.LinkRepository, logger *zap.Logger, opts ClickQueueOptions) *AsyncClickRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	return &AsyncClickRecorder{
		repo:    repo,
		logger:  logger,
		timeout: opts.Timeout,
		queue:   newClickQueue(opts.Workers, opts.Size),
	}
}

func (r *AsyncClickRecorder) Record(ctx context.Context, link *model.Link) {
	id, code := link.ID, link.ShortCode
	detached := context.WithoutCancel(ctx)

	accepted := r.queue.submit(func() {
		ctx, cancel := context.WithTimeout(detached, r.timeout)
		defer cancel()

		if err := r.repo.IncrementClicks(ctx, id); err != nil {
			metrics.ClickFailures.WithLabelValues("increment").Inc()
			r.logger.Warn("failed to record click",
				zap.Uint64("link_id", id),
				zap.String("code", code),
				zap.Error(err),
			)
		}
	})
	if !accepted {
		r.logger.Warn("click queue full, dropping click", zap.Uint64("link_id", id), zap.String("code", code))
	}
}

// Wait blocks until every click accepted so far has settled.
func (r *AsyncClickRecorder) Wait() {
	r.queue.wait()
}

// Close drains queued clicks and stops the workers. Later clicks are dropped.
func (r *AsyncClickRecorder) Close() {
	r.queue.close()
}
