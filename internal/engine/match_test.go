package engine

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JhonesBR/go-ome/internal/book"
	"github.com/JhonesBR/go-ome/internal/exchange"
)

const btc = 100_000_000

var (
	alice = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	bob   = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
)

func btcUsd(lot int64) exchange.Market {
	return exchange.Market{
		Id:            uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		BaseSymbol:    "BTC",
		QuoteSymbol:   "USD",
		BaseUnitScale: btc,
		LotSize:       lot,
	}
}

func order(m exchange.Market, user uuid.UUID, side exchange.Side, price, amount int64) Incoming {
	return Incoming{UserId: user, MarketId: m.Id, Side: side, Price: price, Amount: amount}
}

func match(t *testing.T, b *book.Book, m exchange.Market, in Incoming) Outcome {
	t.Helper()
	out, err := Match(b, m, in, time.Now(), uuid.New)
	require.NoError(t, err)
	return out
}

func TestMatchRestsOnEmptyBookThenCrosses(t *testing.T) {
	m := btcUsd(1)
	b := book.New(m.Id)

	out := match(t, b, m, order(m, alice, exchange.Sell, 50000, 1*btc))
	assert.Empty(t, out.Fills)
	require.NotNil(t, out.Residual)
	assert.Equal(t, int64(btc), out.Residual.Unfilled)
	ask := out.Residual.Id

	out = match(t, b, m, order(m, bob, exchange.Buy, 51000, btc/2))
	require.Len(t, out.Fills, 1)
	assert.Equal(t, int64(50000), out.Fills[0].Price, "taker gets the maker's price")
	assert.Equal(t, int64(btc/2), out.Fills[0].Amount)
	assert.Equal(t, ask, out.Fills[0].MakerOrderId)
	assert.Equal(t, alice, out.Fills[0].MakerUserId)
	assert.Equal(t, bob, out.Fills[0].TakerUserId)
	assert.Nil(t, out.Residual)
	assert.False(t, out.Taker.Active)

	resting, ok := b.Get(ask)
	require.True(t, ok)
	assert.Equal(t, int64(btc/2), resting.Unfilled)
	_, ok = b.BestBid()
	assert.False(t, ok)
}

func TestMatchConsumesBidAndRestsRemainder(t *testing.T) {
	m := btcUsd(1)
	b := book.New(m.Id)

	bid := match(t, b, m, order(m, alice, exchange.Buy, 49000, 2*btc)).Residual
	require.NotNil(t, bid)

	out := match(t, b, m, order(m, bob, exchange.Sell, 48000, 3*btc))
	require.Len(t, out.Fills, 1)
	assert.Equal(t, int64(49000), out.Fills[0].Price)
	assert.Equal(t, int64(2*btc), out.Fills[0].Amount)
	_, ok := b.Get(bid.Id)
	assert.False(t, ok, "fully consumed bid leaves the book")

	require.NotNil(t, out.Residual)
	assert.Equal(t, exchange.Sell, out.Residual.Side)
	assert.Equal(t, int64(48000), out.Residual.Price)
	assert.Equal(t, int64(btc), out.Residual.Unfilled)
	assert.Equal(t, int64(3*btc), out.Residual.Amount)
	assert.Equal(t, bob, out.Residual.UserId)

	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, out.Residual.Id, ask.Id)
	assert.Equal(t, 1, b.Len())
}

func TestMatchPriceTimePriority(t *testing.T) {
	m := btcUsd(1)
	b := book.New(m.Id)

	early := match(t, b, m, order(m, alice, exchange.Sell, 100, 10)).Residual
	late := match(t, b, m, order(m, bob, exchange.Sell, 100, 10)).Residual

	out := match(t, b, m, order(m, bob, exchange.Buy, 100, 4))
	require.Len(t, out.Fills, 1)
	assert.Equal(t, early.Id, out.Fills[0].MakerOrderId)

	// the partially filled order keeps the front of the queue
	out = match(t, b, m, order(m, bob, exchange.Buy, 100, 8))
	require.Len(t, out.Fills, 2)
	assert.Equal(t, early.Id, out.Fills[0].MakerOrderId)
	assert.Equal(t, int64(6), out.Fills[0].Amount)
	assert.Equal(t, late.Id, out.Fills[1].MakerOrderId)
	assert.Equal(t, int64(2), out.Fills[1].Amount)
}

func TestMatchWalksPriceLevels(t *testing.T) {
	m := btcUsd(1)
	b := book.New(m.Id)
	for _, p := range []int64{103, 101, 102, 110} {
		match(t, b, m, order(m, alice, exchange.Sell, p, 5))
	}

	out := match(t, b, m, order(m, bob, exchange.Buy, 102, 12))
	require.Len(t, out.Fills, 2)
	assert.Equal(t, int64(101), out.Fills[0].Price)
	assert.Equal(t, int64(102), out.Fills[1].Price)
	require.NotNil(t, out.Residual)
	assert.Equal(t, int64(2), out.Residual.Unfilled)
	assert.Equal(t, int64(10), out.Filled())

	bid, _ := b.BestBid()
	ask, _ := b.BestAsk()
	assert.Equal(t, int64(102), bid.Price)
	assert.Equal(t, int64(103), ask.Price)
}

func TestMatchAllowsSelfTrade(t *testing.T) {
	m := btcUsd(1)
	b := book.New(m.Id)
	match(t, b, m, order(m, alice, exchange.Sell, 100, 5))

	out := match(t, b, m, order(m, alice, exchange.Buy, 100, 5))
	require.Len(t, out.Fills, 1)
	assert.Equal(t, alice, out.Fills[0].MakerUserId)
	assert.Equal(t, alice, out.Fills[0].TakerUserId)
}

func TestMatchChangesMirrorFills(t *testing.T) {
	m := btcUsd(1)
	b := book.New(m.Id)
	match(t, b, m, order(m, alice, exchange.Sell, 100, 5))
	match(t, b, m, order(m, alice, exchange.Sell, 101, 5))

	out := match(t, b, m, order(m, bob, exchange.Buy, 101, 7))
	require.Len(t, out.Changes.Reductions, 2)
	assert.Equal(t, int64(5), out.Changes.Reductions[0].Amount)
	assert.Equal(t, int64(2), out.Changes.Reductions[1].Amount)
	assert.Equal(t, out.Fills, out.Changes.Fills)
	assert.Nil(t, out.Changes.Resting)
}

func TestValidate(t *testing.T) {
	m := btcUsd(100_000)
	obsolete := m
	obsolete.Obsolete = true

	tests := []struct {
		name   string
		market exchange.Market
		in     Incoming
		want   error
	}{
		{name: "ok", market: m, in: order(m, alice, exchange.Buy, 1, 100_000)},
		{name: "obsolete market", market: obsolete, in: order(m, alice, exchange.Buy, 1, 100_000), want: ErrNotFound},
		{name: "other market", market: m, in: Incoming{UserId: alice, MarketId: uuid.New(), Side: exchange.Buy, Price: 1, Amount: 100_000}, want: ErrNotFound},
		{name: "bad side", market: m, in: order(m, alice, "hold", 1, 100_000), want: ErrInvalidOrder},
		{name: "no user", market: m, in: order(m, uuid.Nil, exchange.Buy, 1, 100_000), want: ErrInvalidOrder},
		{name: "zero price", market: m, in: order(m, alice, exchange.Buy, 0, 100_000), want: ErrInvalidOrder},
		{name: "negative amount", market: m, in: order(m, alice, exchange.Buy, 1, -100_000), want: ErrInvalidOrder},
		{name: "partial lot", market: m, in: order(m, alice, exchange.Buy, 1, 150_000), want: ErrLotSizeViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.market, tt.in)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLotSizeViolationLeavesBookUntouched(t *testing.T) {
	m := btcUsd(100_000)
	b := book.New(m.Id)
	match(t, b, m, order(m, alice, exchange.Sell, 100, 100_000))
	before := b.Orders(exchange.Sell)

	_, err := Match(b, m, order(m, bob, exchange.Buy, 100, 150_000), time.Now(), uuid.New)
	require.ErrorIs(t, err, ErrLotSizeViolation)
	assert.Contains(t, err.Error(), "not a multiple of lot size 100000")
	assert.Equal(t, before, b.Orders(exchange.Sell))
	assert.Empty(t, b.Orders(exchange.Buy))
}

// TestMatchInvariants plays random order flow and checks the book never
// crosses and no quantity is created or lost.
func TestMatchInvariants(t *testing.T) {
	m := btcUsd(10)
	b := book.New(m.Id)
	rng := rand.New(rand.NewSource(7))

	amounts := map[uuid.UUID]int64{}
	filled := map[uuid.UUID]int64{}

	for i := 0; i < 2000; i++ {
		side := exchange.Buy
		if rng.Intn(2) == 0 {
			side = exchange.Sell
		}
		in := order(m, uuid.New(), side, int64(95+rng.Intn(11)), int64(1+rng.Intn(20))*m.LotSize)
		out := match(t, b, m, in)

		amounts[out.Taker.Id] = out.Taker.Amount
		var prev int64
		for j, f := range out.Fills {
			filled[f.MakerOrderId] += f.Amount
			filled[f.TakerOrderId] += f.Amount
			assert.True(t, side.Crosses(in.Price, f.Price))
			if j > 0 {
				// makers are visited best price first
				if side == exchange.Buy {
					assert.GreaterOrEqual(t, f.Price, prev)
				} else {
					assert.LessOrEqual(t, f.Price, prev)
				}
			}
			prev = f.Price
		}
		assert.Equal(t, out.Taker.Amount, out.Taker.Unfilled+out.Filled())
		require.False(t, b.Crossed(), "crossed after order %d", i)
	}

	resting := map[uuid.UUID]int64{}
	for _, side := range []exchange.Side{exchange.Buy, exchange.Sell} {
		for _, o := range b.Orders(side) {
			resting[o.Id] = o.Unfilled
			assert.Zero(t, o.Unfilled%m.LotSize)
		}
	}
	for id, amount := range amounts {
		assert.Equal(t, amount, resting[id]+filled[id], "order %s", id)
	}
}
