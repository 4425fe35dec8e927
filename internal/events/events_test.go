package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	amqp "github.com/rabbitmq/amqp091-go"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/queueline/internal/domain"
	"github.com/aryan0dhankhar/queueline/internal/infrastructure/redis"
)

type captureSink struct {
	name string
	mu   sync.Mutex
	got  []domain.Event
	err  error
}

func (s *captureSink) Name() string { return s.name }

func (s *captureSink) Deliver(_ context.Context, ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, ev)
	return s.err
}

func (s *captureSink) events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.got...)
}

func event(queueID string, seq int64) domain.Event {
	return domain.Event{
		Type:    domain.EventTokenEnqueued,
		QueueID: queueID,
		Seq:     seq,
		At:      time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		Token:   &domain.TokenSummary{ID: "t1", DisplayCode: "FRO-001", Status: domain.StatusWaiting, Position: 1},
	}
}

func TestDispatcherPreservesOrderAcrossSinks(t *testing.T) {
	failing := &captureSink{name: "broken", err: errors.New("down")}
	ok := &captureSink{name: "ok"}
	d := NewDispatcher(64, nil, failing, ok)
	d.Start(context.Background())

	for i := int64(1); i <= 20; i++ {
		d.Publish(event("q1", i))
	}
	d.Stop()

	got := ok.events()
	require.Len(t, got, 20)
	for i, ev := range got {
		assert.Equal(t, int64(i+1), ev.Seq)
	}
	assert.Len(t, failing.events(), 20)
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &captureSink{name: "ok"}
	d := NewDispatcher(2, nil, sink)

	d.Publish(event("q1", 1))
	d.Publish(event("q1", 2))
	d.Publish(event("q1", 3))

	d.Start(context.Background())
	d.Stop()

	got := sink.events()
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].Seq)
	assert.Equal(t, int64(2), got[1].Seq)
}

func TestDispatcherDrainsOnCancel(t *testing.T) {
	sink := &captureSink{name: "ok"}
	d := NewDispatcher(8, nil, sink)
	ctx, cancel := context.WithCancel(context.Background())
	d.Publish(event("q1", 1))
	d.Publish(event("q1", 2))
	cancel()
	d.Start(ctx)
	d.Stop()

	assert.Len(t, sink.events(), 2)
}

func TestRedisSinkPublishesToQueueChannel(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	sink := NewRedisSink(redis.NewFromClient(rdb, nil))

	ev := event("q1", 7)
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	mock.ExpectPublish("queue:q1:events", payload).SetVal(1)

	require.NoError(t, sink.Deliver(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSinkReportsPublishError(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	sink := NewRedisSink(redis.NewFromClient(rdb, nil))

	ev := event("q1", 1)
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	mock.ExpectPublish("queue:q1:events", payload).SetErr(errors.New("connection refused"))

	err = sink.Deliver(context.Background(), ev)
	assert.ErrorContains(t, err, "connection refused")
}

func TestRelayDecodesAndForwards(t *testing.T) {
	target := &captureSink{name: "hub"}
	relay := NewRedisRelay(nil, target, nil)

	ev := event("q1", 3)
	payload, err := json.Marshal(ev)
	require.NoError(t, err)

	relay.handle(context.Background(), &goredis.Message{Channel: "queue:q1:events", Payload: string(payload)})
	relay.handle(context.Background(), &goredis.Message{Channel: "queue:q2:events", Payload: string(payload)})
	relay.handle(context.Background(), &goredis.Message{Channel: "queue:q1:events", Payload: "{not json"})

	got := target.events()
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].Seq)
	assert.Equal(t, "FRO-001", got[0].Token.DisplayCode)
}

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.exchange, c.key, c.msg = exchange, key, msg
	return nil
}

func (c *fakeChannel) Close() error { return nil }

func TestAMQPSinkRoutesByEventType(t *testing.T) {
	ch := &fakeChannel{}
	sink := &AMQPSink{ch: ch, exchange: "queueline.events"}

	ev := event("q1", 4)
	ev.Type = domain.EventTokenCalled
	require.NoError(t, sink.Deliver(context.Background(), ev))

	assert.Equal(t, "queueline.events", ch.exchange)
	assert.Equal(t, "token.called", ch.key)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, "q1:4:token.called", ch.msg.MessageId)

	var decoded domain.Event
	require.NoError(t, json.Unmarshal(ch.msg.Body, &decoded))
	assert.Equal(t, ev.QueueID, decoded.QueueID)
	assert.Equal(t, ev.Seq, decoded.Seq)
	assert.NoError(t, sink.Close())
}
