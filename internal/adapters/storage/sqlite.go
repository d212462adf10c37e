package storage

// sqlite.go — persistencia del mercado y del journal del token.
//
// Estrategia:
//   - `markets` y `positions`: UNA fila por entidad (UPSERT). Son el estado
//     actual, se reescriben tras cada operación confirmada.
//   - `trades` y `claims`: append-only, recibos de cada operación.
//   - `ledger_events`: append-only, ordenado por seq. Es la fuente para
//     reconstruir balances y allowances al arrancar.
//   - Importes como TEXT en unidades base (18 decimales no caben en INTEGER).
//     Direcciones como hex con checksum. Fechas como TEXT RFC3339Nano.

import (
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS markets (
    id                INTEGER PRIMARY KEY,
    question          TEXT    NOT NULL,
    label_a           TEXT    NOT NULL,
    label_b           TEXT    NOT NULL,
    creator           TEXT    NOT NULL,
    created_at        TEXT    NOT NULL,
    duration_secs     INTEGER NOT NULL,
    close_time        TEXT    NOT NULL,
    phase             TEXT    NOT NULL DEFAULT 'OPEN',
    winner            INTEGER NOT NULL DEFAULT 0,
    resolved_at       TEXT,
    shares_a          TEXT    NOT NULL,
    shares_b          TEXT    NOT NULL,
    payments_a        TEXT    NOT NULL DEFAULT '0',
    payments_b        TEXT    NOT NULL DEFAULT '0',
    initial_liquidity TEXT    NOT NULL,
    initial_cost      TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
    market_id  INTEGER NOT NULL,
    account    TEXT    NOT NULL,
    shares_a   TEXT    NOT NULL DEFAULT '0',
    shares_b   TEXT    NOT NULL DEFAULT '0',
    paid_a     TEXT    NOT NULL DEFAULT '0',
    paid_b     TEXT    NOT NULL DEFAULT '0',
    claimed    INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (market_id, account)
);

CREATE TABLE IF NOT EXISTS trades (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    id          TEXT    NOT NULL UNIQUE,
    market_id   INTEGER NOT NULL,
    account     TEXT    NOT NULL,
    kind        TEXT    NOT NULL,
    outcome     INTEGER NOT NULL,
    shares      TEXT    NOT NULL,
    cost        TEXT    NOT NULL,
    price_a     TEXT    NOT NULL,
    price_b     TEXT    NOT NULL,
    executed_at TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS claims (
    seq        INTEGER PRIMARY KEY AUTOINCREMENT,
    id         TEXT    NOT NULL UNIQUE,
    market_id  INTEGER NOT NULL,
    account    TEXT    NOT NULL,
    outcome    INTEGER NOT NULL,
    shares     TEXT    NOT NULL,
    stake      TEXT    NOT NULL,
    pool_share TEXT    NOT NULL,
    reward     TEXT    NOT NULL,
    claimed_at TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_events (
    seq        INTEGER PRIMARY KEY,
    id         TEXT    NOT NULL,
    kind       TEXT    NOT NULL,
    from_addr  TEXT    NOT NULL,
    to_addr    TEXT    NOT NULL,
    spender    TEXT    NOT NULL DEFAULT '',
    amount     TEXT    NOT NULL,
    at         TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_market ON trades(market_id, seq);
CREATE INDEX IF NOT EXISTS idx_claims_market ON claims(market_id, seq);
`

// SQLiteStorage implementa ports.MarketStore y ports.LedgerJournal usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica el schema.
// ":memory:" sirve para tests y para simulaciones que no necesitan sobrevivir al proceso.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

func amountText(x *big.Int) string {
	if x == nil {
		return "0"
	}
	return x.String()
}

func parseAmountText(col, s string) (*big.Int, error) {
	x, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("column %s: bad amount %q", col, s)
	}
	return x, nil
}

func parseAddress(col, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("column %s: bad address %q", col, s)
	}
	return common.HexToAddress(s), nil
}

func timeText(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullTimeVal(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return timeText(t)
}

func parseTimeText(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// amountFields parsea varias columnas de importe de una vez; el primer error corta.
type amountFields struct {
	err error
}

func (f *amountFields) parse(col, s string) *big.Int {
	if f.err != nil {
		return nil
	}
	x, err := parseAmountText(col, s)
	if err != nil {
		f.err = err
		return nil
	}
	return x
}
