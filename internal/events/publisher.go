// Package events publishes committed fills to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/JhonesBR/go-ome/internal/exchange"
)

type Publisher interface {
	PublishFills(ctx context.Context, fills []exchange.Fill) error
	Close() error
}

type nop struct{}

func (nop) PublishFills(context.Context, []exchange.Fill) error { return nil }
func (nop) Close() error                                      { return nil }

// Nop drops everything.
func Nop() Publisher { return nop{} }

// FillMessage is the wire form of a fill. Amounts are base units.
type FillMessage struct {
	Id           string    `json:"id"`
	MarketId     string    `json:"market_id"`
	MakerOrderId string    `json:"maker_order_id"`
	TakerOrderId string    `json:"taker_order_id"`
	MakerUserId  string    `json:"maker_user_id"`
	TakerUserId  string    `json:"taker_user_id"`
	TakerSide    string    `json:"taker_side"`
	Price        int64     `json:"price"`
	Amount       int64     `json:"amount"`
	Created      time.Time `json:"created"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher writes fills to topic keyed by market id, so one market's
// fills stay ordered within a partition.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *KafkaPublisher) PublishFills(ctx context.Context, fills []exchange.Fill) error {
	if len(fills) == 0 {
		return nil
	}
	msgs, err := encode(fills)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func encode(fills []exchange.Fill) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(fills))
	for _, f := range fills {
		value, err := json.Marshal(FillMessage{
			Id:           f.Id.String(),
			MarketId:     f.MarketId.String(),
			MakerOrderId: f.MakerOrderId.String(),
			TakerOrderId: f.TakerOrderId.String(),
			MakerUserId:  f.MakerUserId.String(),
			TakerUserId:  f.TakerUserId.String(),
			TakerSide:    string(f.TakerSide),
			Price:        f.Price,
			Amount:       f.Amount,
			Created:      f.Created,
		})
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, kafka.Message{Key: []byte(f.MarketId.String()), Value: value})
	}
	return msgs, nil
}
