package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"pdfchat-be/internal/pkg/logger"
	"pdfchat-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *recordingSink) Publish(ctx context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.EventType()
	}
	return out
}

func TestConsumerForwardsBusEventsToSink(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	sink := &recordingSink{}
	consumer := NewConsumerService(pubSub, "chat_events", sink, logger.NewNopLogger(), nil)
	require.NoError(t, consumer.Consume(ctx))

	publisher := NewPublisherService("chat_events", pubSub)
	require.NoError(t, publisher.Publish(ctx, events.NewSessionCreated("abc123")))
	require.NoError(t, publisher.Publish(ctx, events.NewSessionDeleted("abc123")))

	assert.Eventually(t, func() bool {
		return len(sink.types()) == 2
	}, time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{events.TypeSessionCreated, events.TypeSessionDeleted}, sink.types())
}
