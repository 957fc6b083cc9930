package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JhonesBR/go-ome/internal/exchange"
)

type recordingWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherKeysByMarket(t *testing.T) {
	w := &recordingWriter{}
	p := &KafkaPublisher{writer: w}
	market := uuid.New()
	fills := []exchange.Fill{
		{Id: uuid.New(), MarketId: market, TakerSide: exchange.Buy, Price: 50000, Amount: 50_000_000, Created: time.Now()},
		{Id: uuid.New(), MarketId: market, TakerSide: exchange.Buy, Price: 50100, Amount: 1, Created: time.Now()},
	}

	require.NoError(t, p.PublishFills(context.Background(), fills))
	require.Len(t, w.msgs, 2)

	for i, m := range w.msgs {
		assert.Equal(t, market.String(), string(m.Key))
		var got FillMessage
		require.NoError(t, json.Unmarshal(m.Value, &got))
		assert.Equal(t, fills[i].Id.String(), got.Id)
		assert.Equal(t, fills[i].Price, got.Price)
		assert.Equal(t, fills[i].Amount, got.Amount)
		assert.Equal(t, "buy", got.TakerSide)
	}

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisherSkipsEmpty(t *testing.T) {
	w := &recordingWriter{}
	p := &KafkaPublisher{writer: w}
	require.NoError(t, p.PublishFills(context.Background(), nil))
	assert.Empty(t, w.msgs)
}
