package sinks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/modalprogress/internal/progress"
)

// Publisher pushes run notifications to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// PublishSink announces finished runs by publishing their RunSummary.
type PublishSink struct {
	pub    Publisher
	topic  string
	logger *zap.Logger
}

// NewPublishSink constructs a PublishSink for topic.
func NewPublishSink(pub Publisher, topic string, logger *zap.Logger) *PublishSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishSink{pub: pub, topic: topic, logger: logger}
}

// Consume publishes one message per terminal event in the batch.
func (s *PublishSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.pub == nil {
		return nil
	}
	var errs []error
	for _, evt := range batch {
		if !evt.Terminal() {
			continue
		}
		sum := NewRunSummary(evt)
		id, err := s.pub.Publish(ctx, s.topic, sum)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish run %s: %w", sum.RunID, err))
			continue
		}
		s.logger.Debug("run summary published",
			zap.String("run_id", sum.RunID),
			zap.String("topic", s.topic),
			zap.String("message_id", id),
		)
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; it performs no action.
func (s *PublishSink) Close(context.Context) error {
	return nil
}
