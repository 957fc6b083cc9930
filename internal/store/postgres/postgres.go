// Package postgres keeps books in Postgres. A session is a REPEATABLE READ
// transaction that loads the market's active offers and remembers
// markets.book_version. Commit bumps the version guarded by the value read,
// so two sessions that saw the same book cannot both commit.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JhonesBR/go-ome/internal/book"
	"github.com/JhonesBR/go-ome/internal/exchange"
	"github.com/JhonesBR/go-ome/internal/store"
)

const (
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
	uniqueViolation      = "23505"
)

type Store struct {
	pool *pgxpool.Pool
}

var _ store.Backend = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// IsSerializationFailure reports whether err is a Postgres error that a
// retry of the whole transaction may resolve.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == serializationFailure || pgErr.Code == deadlockDetected
	}
	return false
}

// conflict turns serialization failures into store.ErrConflict and leaves
// everything else alone.
func conflict(err error) error {
	if err != nil && IsSerializationFailure(err) {
		return fmt.Errorf("%w: %w", store.ErrConflict, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

const marketColumns = `m.id, m.base_symbol, m.quote_symbol, a.base_unit_scale, m.lot_size, m.obsolete, m.created`

const marketFrom = `FROM markets m JOIN assets a ON a.symbol = m.base_symbol`

func scanMarket(row pgx.Row) (exchange.Market, error) {
	var m exchange.Market
	err := row.Scan(&m.Id, &m.BaseSymbol, &m.QuoteSymbol, &m.BaseUnitScale, &m.LotSize, &m.Obsolete, &m.Created)
	return m, err
}

func (s *Store) Market(ctx context.Context, id uuid.UUID) (exchange.Market, error) {
	m, err := scanMarket(s.pool.QueryRow(ctx, `SELECT `+marketColumns+` `+marketFrom+` WHERE m.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return exchange.Market{}, fmt.Errorf("%w: market %s", store.ErrNotFound, id)
	}
	return m, err
}

func (s *Store) CreateAsset(ctx context.Context, a exchange.Asset) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO assets (symbol, base_unit_scale) VALUES ($1, $2)`, a.Symbol, a.BaseUnitScale)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: asset %q", store.ErrExists, a.Symbol)
	}
	return err
}

func (s *Store) CreateMarket(ctx context.Context, base, quote string, lotSize int64) (exchange.Market, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO markets (id, base_symbol, quote_symbol, lot_size) VALUES ($1, $2, $3, $4)`,
		id, base, quote, lotSize)
	if isUniqueViolation(err) {
		return exchange.Market{}, fmt.Errorf("%w: market %s/%s", store.ErrExists, base, quote)
	}
	if err != nil {
		return exchange.Market{}, err
	}
	return s.Market(ctx, id)
}

func (s *Store) SetObsolete(ctx context.Context, id uuid.UUID, obsolete bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE markets SET obsolete = $2 WHERE id = $1`, id, obsolete)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: market %s", store.ErrNotFound, id)
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, email string) (exchange.User, error) {
	var u exchange.User
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, email) VALUES ($1, $2) RETURNING id, email, created`,
		uuid.New(), email).Scan(&u.Id, &u.Email, &u.Created)
	if isUniqueViolation(err) {
		return exchange.User{}, fmt.Errorf("%w: user %q", store.ErrExists, email)
	}
	return u, err
}

func (s *Store) Begin(ctx context.Context, marketId uuid.UUID) (store.Session, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, err
	}
	sess := &session{tx: tx, marketId: marketId}
	if err := sess.load(ctx); err != nil {
		sess.Release(ctx)
		return nil, conflict(err)
	}
	return sess, nil
}

type session struct {
	tx       pgx.Tx
	marketId uuid.UUID
	version  int64
	book     *book.Book
	done     bool
}

func (ss *session) load(ctx context.Context) error {
	err := ss.tx.QueryRow(ctx, `SELECT book_version FROM markets WHERE id = $1`, ss.marketId).Scan(&ss.version)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: market %s", store.ErrNotFound, ss.marketId)
	}
	if err != nil {
		return err
	}

	rows, err := ss.tx.Query(ctx,
		`SELECT `+orderColumns+` FROM offers
		 WHERE market_id = $1 AND active
		 ORDER BY created, seq`, ss.marketId)
	if err != nil {
		return err
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return err
	}

	ss.book = book.New(ss.marketId)
	for _, o := range orders {
		if err := ss.book.Insert(o); err != nil {
			return fmt.Errorf("load book of market %s: %w", ss.marketId, err)
		}
	}
	return nil
}

func (ss *session) Book() *book.Book { return ss.book }

func (ss *session) Commit(ctx context.Context, changes store.Changes) error {
	if ss.done {
		return fmt.Errorf("postgres: session already ended")
	}

	batch := &pgx.Batch{}
	batch.Queue(`UPDATE markets SET book_version = book_version + 1 WHERE id = $1 AND book_version = $2`, ss.marketId, ss.version)
	for _, r := range changes.Reductions {
		batch.Queue(
			`UPDATE offers SET unfilled = unfilled - $2, active = unfilled - $2 > 0
			 WHERE id = $1 AND active AND unfilled >= $2`,
			r.OrderId, r.Amount)
	}
	for _, id := range changes.Cancelled {
		batch.Queue(`UPDATE offers SET active = FALSE WHERE id = $1 AND active`, id)
	}
	if o := changes.Resting; o != nil {
		batch.Queue(
			`INSERT INTO offers (id, market_id, user_id, side, price, amount, unfilled, active, created)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			o.Id, o.MarketId, o.UserId, string(o.Side), o.Price, o.Amount, o.Unfilled, o.Active, o.Created)
	}
	for _, f := range changes.Fills {
		batch.Queue(
			`INSERT INTO fills (id, market_id, maker_order_id, taker_order_id, maker_user_id, taker_user_id, taker_side, price, amount, created)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			f.Id, f.MarketId, f.MakerOrderId, f.TakerOrderId, f.MakerUserId, f.TakerUserId, string(f.TakerSide), f.Price, f.Amount, f.Created)
	}

	if err := ss.send(ctx, batch, len(changes.Reductions)+len(changes.Cancelled)); err != nil {
		ss.Release(ctx)
		return conflict(err)
	}
	if err := ss.tx.Commit(ctx); err != nil {
		ss.done = true
		return conflict(err)
	}
	ss.done = true
	return nil
}

// send runs the batch. The version bump and the guarded offer updates that
// follow it must each touch exactly one row.
func (ss *session) send(ctx context.Context, batch *pgx.Batch, guarded int) error {
	br := ss.tx.SendBatch(ctx, batch)
	tag, err := br.Exec()
	if err != nil {
		br.Close()
		return err
	}
	if tag.RowsAffected() != 1 {
		br.Close()
		return fmt.Errorf("%w: market %s moved past version %d", store.ErrConflict, ss.marketId, ss.version)
	}
	for i := 1; i < batch.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return err
		}
		if i <= guarded && tag.RowsAffected() != 1 {
			br.Close()
			return fmt.Errorf("%w: offer update on market %s matched %d rows", store.ErrConflict, ss.marketId, tag.RowsAffected())
		}
	}
	return br.Close()
}

func (ss *session) Release(ctx context.Context) {
	if ss.done {
		return
	}
	ss.done = true
	_ = ss.tx.Rollback(ctx)
}

const orderColumns = `id, market_id, user_id, side, price, amount, unfilled, active, created`

func scanOrder(row pgx.CollectableRow) (exchange.Order, error) {
	var o exchange.Order
	var side string
	err := row.Scan(&o.Id, &o.MarketId, &o.UserId, &side, &o.Price, &o.Amount, &o.Unfilled, &o.Active, &o.Created)
	o.Side = exchange.Side(side)
	return o, err
}

const fillColumns = `id, market_id, maker_order_id, taker_order_id, maker_user_id, taker_user_id, taker_side, price, amount, created`

func scanFill(row pgx.CollectableRow) (exchange.Fill, error) {
	var f exchange.Fill
	var side string
	err := row.Scan(&f.Id, &f.MarketId, &f.MakerOrderId, &f.TakerOrderId, &f.MakerUserId, &f.TakerUserId, &side, &f.Price, &f.Amount, &f.Created)
	f.TakerSide = exchange.Side(side)
	return f, err
}

func (s *Store) Markets(ctx context.Context) ([]exchange.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketColumns+` `+marketFrom+`
		 WHERE NOT m.obsolete
		 ORDER BY m.base_symbol, m.quote_symbol`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (exchange.Market, error) {
		return scanMarket(row)
	})
}

func (s *Store) MarketBySymbol(ctx context.Context, base, quote string) (exchange.Market, error) {
	base, quote = strings.ToUpper(base), strings.ToUpper(quote)
	m, err := scanMarket(s.pool.QueryRow(ctx,
		`SELECT `+marketColumns+` `+marketFrom+`
		 WHERE m.base_symbol = $1 AND m.quote_symbol = $2 AND NOT m.obsolete`, base, quote))
	if errors.Is(err, pgx.ErrNoRows) {
		return exchange.Market{}, fmt.Errorf("%w: market %s/%s", store.ErrNotFound, base, quote)
	}
	return m, err
}

func (s *Store) Depth(ctx context.Context, marketId uuid.UUID, limit int) ([]exchange.PriceLevel, []exchange.PriceLevel, error) {
	if _, err := s.Market(ctx, marketId); err != nil {
		return nil, nil, err
	}
	bids, err := s.levels(ctx, marketId, exchange.Buy, limit)
	if err != nil {
		return nil, nil, err
	}
	asks, err := s.levels(ctx, marketId, exchange.Sell, limit)
	if err != nil {
		return nil, nil, err
	}
	return bids, asks, nil
}

func (s *Store) levels(ctx context.Context, marketId uuid.UUID, side exchange.Side, limit int) ([]exchange.PriceLevel, error) {
	order := "DESC"
	if side == exchange.Sell {
		order = "ASC"
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT price, SUM(unfilled)::BIGINT, COUNT(*)::INT
		 FROM offers
		 WHERE market_id = $1 AND side = $2 AND active
		 GROUP BY price
		 ORDER BY price %s
		 LIMIT NULLIF($3::INT, 0)`, order),
		marketId, string(side), max(limit, 0))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (exchange.PriceLevel, error) {
		var l exchange.PriceLevel
		err := row.Scan(&l.Price, &l.Amount, &l.Orders)
		return l, err
	})
}

func (s *Store) Order(ctx context.Context, id uuid.UUID) (exchange.Order, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+orderColumns+` FROM offers WHERE id = $1`, id)
	if err != nil {
		return exchange.Order{}, err
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if errors.Is(err, pgx.ErrNoRows) {
		return exchange.Order{}, fmt.Errorf("%w: order %s", store.ErrNotFound, id)
	}
	return o, err
}

// where accumulates positional conditions.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(w.conds, " AND ")
}

func (s *Store) Orders(ctx context.Context, f store.OrderFilter) ([]exchange.Order, error) {
	w := &where{}
	w.add("user_id = ?", f.UserId)
	if f.MarketId != nil {
		w.add("market_id = ?", *f.MarketId)
	}
	switch f.Status {
	case store.StatusActive:
		w.conds = append(w.conds, "active")
	case store.StatusInactive:
		w.conds = append(w.conds, "NOT active")
	}

	query := fmt.Sprintf(`SELECT %s FROM offers %s ORDER BY created DESC, seq DESC`, orderColumns, w)
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", f.Offset)
	}
	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanOrder)
}

func (s *Store) Fills(ctx context.Context, f store.FillFilter) ([]exchange.Fill, error) {
	w := &where{}
	if f.UserId != nil {
		w.add("(maker_user_id = ? OR taker_user_id = ?)", *f.UserId)
	}
	if f.MarketId != nil {
		w.add("market_id = ?", *f.MarketId)
	}
	if f.OrderId != nil {
		w.add("(maker_order_id = ? OR taker_order_id = ?)", *f.OrderId)
	}

	query := fmt.Sprintf(`SELECT %s FROM fills %s ORDER BY created DESC, seq DESC`, fillColumns, w)
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanFill)
}

func (s *Store) Users(ctx context.Context) ([]exchange.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, email, created FROM users ORDER BY email`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanUser)
}

func (s *Store) User(ctx context.Context, id uuid.UUID) (exchange.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, email, created FROM users WHERE id = $1`, id)
	if err != nil {
		return exchange.User{}, err
	}
	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if errors.Is(err, pgx.ErrNoRows) {
		return exchange.User{}, fmt.Errorf("%w: user %s", store.ErrNotFound, id)
	}
	return u, err
}

func scanUser(row pgx.CollectableRow) (exchange.User, error) {
	var u exchange.User
	err := row.Scan(&u.Id, &u.Email, &u.Created)
	return u, err
}
