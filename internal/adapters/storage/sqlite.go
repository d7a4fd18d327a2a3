package storage

// sqlite.go: backend SQLite para state e histórico.
//
// Estrategia:
//   - `state`: UNA fila por estrategia (UPSERT) con el state serializado en JSON.
//   - `trades`: histórico append-only, una fila por open/close.
//   - `locks`: una fila por estrategia mientras un run está en curso.
//   - Cache en memoria: evita reescribir el state si el JSON no cambió
//     (el engine guarda tras cada trade y al final del run).

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alejandrodnm/perpbot/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
-- State actual de cada estrategia
CREATE TABLE IF NOT EXISTS state (
    strategy   TEXT PRIMARY KEY,
    body       TEXT     NOT NULL,
    updated_at TEXT     NOT NULL
);

-- Histórico append-only de trades
CREATE TABLE IF NOT EXISTS trades (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    id          TEXT     NOT NULL UNIQUE,
    run_id      TEXT     NOT NULL,
    strategy    TEXT     NOT NULL,
    action      TEXT     NOT NULL,
    position_id TEXT     NOT NULL,
    legs        TEXT     NOT NULL,
    leverage    REAL     NOT NULL DEFAULT 0,
    collateral  REAL     NOT NULL DEFAULT 0,
    prices      TEXT,
    pnl_pct     REAL     NOT NULL DEFAULT 0,
    reason      TEXT,
    tx_hash     TEXT,
    at          TEXT     NOT NULL -- RFC3339Nano
);

-- Lock por estrategia entre procesos
CREATE TABLE IF NOT EXISTS locks (
    strategy    TEXT PRIMARY KEY,
    acquired_at INTEGER  NOT NULL -- unix nanos
);

CREATE INDEX IF NOT EXISTS idx_trades_strategy ON trades(strategy, seq DESC);
CREATE INDEX IF NOT EXISTS idx_trades_at       ON trades(at DESC);
`

// SQLiteStorage implementa ports.StateStore, ports.HistoryStore y ports.Locker
// usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db         *sql.DB
	staleAfter time.Duration
	cache      map[string][]byte // strategy → último body guardado
	mu         sync.Mutex
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica el schema.
// Los locks con más de staleAfter se consideran abandonados (0 = nunca).
func NewSQLiteStorage(path string, staleAfter time.Duration) (*SQLiteStorage, error) {
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

	return &SQLiteStorage{
		db:         db,
		staleAfter: staleAfter,
		cache:      make(map[string][]byte),
	}, nil
}

// Load devuelve el state de la estrategia, o uno vacío si no existe.
func (s *SQLiteStorage) Load(ctx context.Context, strategy string) (*domain.State, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM state WHERE strategy = ?`, strategy).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage.Load: query %s: %w", strategy, err)
	}

	st := domain.NewState()
	if err := json.Unmarshal([]byte(body), st); err != nil {
		return nil, fmt.Errorf("storage.Load: decode %s: %w", strategy, err)
	}
	st.Normalize()

	s.mu.Lock()
	s.cache[strategy] = []byte(body)
	s.mu.Unlock()
	return st, nil
}

// Save hace upsert del state. Si el JSON no cambió desde la última escritura no toca la DB.
func (s *SQLiteStorage) Save(ctx context.Context, strategy string, st *domain.State) error {
	body, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("storage.Save: encode %s: %w", strategy, err)
	}

	s.mu.Lock()
	unchanged := bytes.Equal(s.cache[strategy], body)
	s.mu.Unlock()
	if unchanged {
		return nil
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO state (strategy, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(strategy) DO UPDATE SET
			body       = excluded.body,
			updated_at = excluded.updated_at
	`, strategy, string(body), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("storage.Save: upsert %s: %w", strategy, err)
	}

	s.mu.Lock()
	s.cache[strategy] = body
	s.mu.Unlock()
	return nil
}

// Append inserta un trade en el histórico.
func (s *SQLiteStorage) Append(ctx context.Context, rec domain.TradeRecord) error {
	legs, err := json.Marshal(rec.Legs)
	if err != nil {
		return fmt.Errorf("storage.Append: encode legs: %w", err)
	}
	var prices *string
	if len(rec.Prices) > 0 {
		b, err := json.Marshal(rec.Prices)
		if err != nil {
			return fmt.Errorf("storage.Append: encode prices: %w", err)
		}
		p := string(b)
		prices = &p
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO trades
			(id, run_id, strategy, action, position_id, legs, leverage, collateral,
			 prices, pnl_pct, reason, tx_hash, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID, rec.RunID, rec.Strategy, string(rec.Action), rec.PositionID, string(legs),
		rec.Leverage, rec.Collateral, prices, rec.PnLPct, rec.Reason, rec.TxHash, rec.At.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("storage.Append: insert %s: %w", rec.ID, err)
	}
	return nil
}

// Recent devuelve los últimos limit trades de la estrategia, del más antiguo al
// más reciente. limit <= 0 devuelve todos.
func (s *SQLiteStorage) Recent(ctx context.Context, strategy string, limit int) ([]domain.TradeRecord, error) {
	if limit <= 0 {
		limit = -1 // sin límite en SQLite
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, strategy, action, position_id, legs, leverage, collateral,
		       prices, pnl_pct, reason, tx_hash, at
		FROM trades
		WHERE strategy = ?
		ORDER BY seq DESC
		LIMIT ?
	`, strategy, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.Recent: query: %w", err)
	}
	defer rows.Close()

	var out []domain.TradeRecord
	for rows.Next() {
		var rec domain.TradeRecord
		var action, legs, at string
		var prices, reason, txHash sql.NullString

		if err := rows.Scan(
			&rec.ID, &rec.RunID, &rec.Strategy, &action, &rec.PositionID, &legs,
			&rec.Leverage, &rec.Collateral, &prices, &rec.PnLPct, &reason, &txHash, &at,
		); err != nil {
			return nil, fmt.Errorf("storage.Recent: scan row: %w", err)
		}
		if rec.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("storage.Recent: decode time of %s: %w", rec.ID, err)
		}
		rec.Action = domain.TradeAction(action)
		rec.Reason = reason.String
		rec.TxHash = txHash.String
		if err := json.Unmarshal([]byte(legs), &rec.Legs); err != nil {
			return nil, fmt.Errorf("storage.Recent: decode legs of %s: %w", rec.ID, err)
		}
		if prices.Valid {
			if err := json.Unmarshal([]byte(prices.String), &rec.Prices); err != nil {
				return nil, fmt.Errorf("storage.Recent: decode prices of %s: %w", rec.ID, err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage.Recent: %w", err)
	}

	// query en orden descendente → invertir
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Lock toma el lock de la estrategia. Un lock más viejo que staleAfter se rompe.
func (s *SQLiteStorage) Lock(strategy string) (func() error, error) {
	ctx := context.Background()
	now := time.Now().UTC()

	if s.staleAfter > 0 {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM locks WHERE strategy = ? AND acquired_at < ?`,
			strategy, now.Add(-s.staleAfter).UnixNano(),
		); err != nil {
			return nil, fmt.Errorf("storage.Lock: clear stale %s: %w", strategy, err)
		}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO locks (strategy, acquired_at) VALUES (?, ?) ON CONFLICT(strategy) DO NOTHING`,
		strategy, now.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("storage.Lock: insert %s: %w", strategy, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("storage.Lock %s: %w", strategy, domain.ErrLocked)
	}

	return func() error {
		if _, err := s.db.ExecContext(context.Background(), `DELETE FROM locks WHERE strategy = ?`, strategy); err != nil {
			return fmt.Errorf("storage.Unlock %s: %w", strategy, err)
		}
		return nil
	}, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
