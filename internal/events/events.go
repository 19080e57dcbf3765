// Package events publishes coupon lifecycle events.
package events

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/xenking/little-shop/internal/domain/coupon"
)

// Type names a coupon lifecycle transition.
type Type string

const (
	CouponCreated     Type = "coupon.created"
	CouponActivated   Type = "coupon.activated"
	CouponDeactivated Type = "coupon.deactivated"
	CouponDeleted     Type = "coupon.deleted"
)

// Event is a single coupon transition.
type Event struct {
	ID         string
	Type       Type
	CouponID   int64
	MerchantID int64
	Code       string
	Active     bool
	Time       time.Time
}

// NewEvent builds an event for c with a fresh id.
func NewEvent(t Type, c coupon.Coupon) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		CouponID:   c.ID,
		MerchantID: c.MerchantID,
		Code:       c.Code,
		Active:     c.Active,
		Time:       time.Now().UTC(),
	}
}

// Key is the partition key. Events of one merchant stay ordered.
func (e Event) Key() string {
	return "merchant-" + strconv.FormatInt(e.MerchantID, 10)
}

// Encode writes e as a JSON object.
func (e Event) Encode(w *jx.Encoder) {
	w.ObjStart()
	w.FieldStart("id")
	w.Str(e.ID)
	w.FieldStart("type")
	w.Str(string(e.Type))
	w.FieldStart("coupon_id")
	w.Int64(e.CouponID)
	w.FieldStart("merchant_id")
	w.Int64(e.MerchantID)
	w.FieldStart("code")
	w.Str(e.Code)
	w.FieldStart("active")
	w.Bool(e.Active)
	w.FieldStart("time")
	w.Str(e.Time.Format(time.RFC3339Nano))
	w.ObjEnd()
}

// decode reads e from a JSON object.
func (e *Event) decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			e.ID, err = d.Str()
		case "type":
			var s string
			s, err = d.Str()
			e.Type = Type(s)
		case "coupon_id":
			e.CouponID, err = d.Int64()
		case "merchant_id":
			e.MerchantID, err = d.Int64()
		case "code":
			e.Code, err = d.Str()
		case "active":
			e.Active, err = d.Bool()
		case "time":
			var s string
			if s, err = d.Str(); err == nil {
				e.Time, err = time.Parse(time.RFC3339Nano, s)
			}
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// publishBatchTimeout bounds how long a synchronous Publish waits for a batch
// to fill. Requests publish one message at a time.
const publishBatchTimeout = 5 * time.Millisecond

// KafkaPublisher writes events to a Kafka topic.
type KafkaPublisher struct {
	writer  messageWriter
	brokers []string
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{brokers: brokers, writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		BatchTimeout: publishBatchTimeout,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}}
}

// Publish encodes e and writes it keyed by merchant.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	w := jx.GetEncoder()
	defer jx.PutEncoder(w)
	e.Encode(w)

	msg := kafka.Message{
		Key:   []byte(e.Key()),
		Value: append([]byte(nil), w.Bytes()...),
		Time:  e.Time,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "write %s event", e.Type)
	}
	return nil
}

// Ping dials the brokers until one answers.
func (p *KafkaPublisher) Ping(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return errors.New("no kafka brokers")
	}
	var lastErr error
	for _, b := range p.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", b)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	return errors.Wrap(lastErr, "dial kafka")
}

// Close flushes pending writes.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
