package events

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/little-shop/internal/domain/coupon"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func testCoupon() coupon.Coupon {
	return coupon.Coupon{
		ID: 42, MerchantID: 7, Name: "Spring", Code: "SPRING25",
		DiscountType: coupon.DiscountPercent, DiscountValue: decimal.NewFromInt(25), Active: true,
	}
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &recordingWriter{}
	p := &KafkaPublisher{writer: w}
	e := NewEvent(CouponActivated, testCoupon())

	require.NoError(t, p.Publish(context.Background(), e))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "merchant-7", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "coupon.activated", string(msg.Headers[0].Value))

	var got Event
	require.NoError(t, got.decode(jx.DecodeBytes(msg.Value)))
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, CouponActivated, got.Type)
	assert.Equal(t, int64(42), got.CouponID)
	assert.Equal(t, int64(7), got.MerchantID)
	assert.Equal(t, "SPRING25", got.Code)
	assert.True(t, got.Active)
	assert.True(t, e.Time.Equal(got.Time))
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	p := &KafkaPublisher{writer: &recordingWriter{err: errors.New("broker down")}}

	err := p.Publish(context.Background(), NewEvent(CouponDeleted, testCoupon()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write coupon.deleted event")
}

func TestEvent_DecodeSkipsUnknownFields(t *testing.T) {
	var e Event
	err := e.decode(jx.DecodeStr(`{"id":"x","extra":{"nested":[1,2]},"coupon_id":3}`))
	require.NoError(t, err)
	assert.Equal(t, "x", e.ID)
	assert.Equal(t, int64(3), e.CouponID)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	require.NoError(t, p.Publish(context.Background(), NewEvent(CouponCreated, testCoupon())))
	require.NoError(t, p.Close())
}

func TestNewKafkaPublisher_FlushesSingleMessages(t *testing.T) {
	p := NewKafkaPublisher([]string{"localhost:9092"}, "coupon-events")
	t.Cleanup(func() { _ = p.Close() })

	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "coupon-events", w.Topic)
	assert.Equal(t, publishBatchTimeout, w.BatchTimeout)
	assert.Less(t, w.BatchTimeout, 100*time.Millisecond)
}

func TestKafkaPublisher_PingWithoutBrokers(t *testing.T) {
	p := &KafkaPublisher{writer: &recordingWriter{}}
	require.Error(t, p.Ping(context.Background()))
}
