package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	changesChannel = "document_changes"
	dbTimeout      = 5 * time.Second
	relistenDelay  = time.Second
)

// PostgresStore is a PostgreSQL-backed Store. Documents live in the
// documents table; changes are announced with NOTIFY on commit and fanned
// out from a single LISTEN connection.
type PostgresStore struct {
	pool   *pgxpool.Pool
	hub    *hub
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewPostgresStore starts the change listener and returns the store. The
// documents table must already exist (see database.DB.EnsureSchema).
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}

	conn, err := listenConn(ctx, pool)
	if err != nil {
		return nil, err
	}

	lctx, cancel := context.WithCancel(context.Background())
	s := &PostgresStore{
		pool:   pool,
		hub:    newHub(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.listen(lctx, conn)

	return s, nil
}

func listenConn(ctx context.Context, pool *pgxpool.Pool) (*pgxpool.Conn, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listener connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+changesChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", changesChannel, err)
	}
	return conn, nil
}

func (s *PostgresStore) listen(ctx context.Context, conn *pgxpool.Conn) {
	defer close(s.done)
	defer func() {
		if conn != nil {
			conn.Release()
		}
	}()

	for {
		if conn == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(relistenDelay):
			}
			c, err := listenConn(ctx, s.pool)
			if err != nil {
				slog.Warn("document listener reconnect failed", "error", err)
				continue
			}
			conn = c
		}

		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("document listener interrupted", "error", err)
			conn.Release()
			conn = nil
			continue
		}

		s.dispatch(ctx, n.Payload)
	}
}

func (s *PostgresStore) dispatch(ctx context.Context, path string) {
	if !s.hub.watched(path) {
		return
	}

	body, err := s.Get(ctx, path)
	switch {
	case errors.Is(err, ErrNotFound):
		body = nil
	case err != nil:
		slog.Warn("reload changed document failed", "path", path, "error", err)
		return
	}
	s.hub.publish(path, body)
}

func (s *PostgresStore) Get(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var body []byte
	err := s.pool.QueryRow(ctx,
		`SELECT body FROM documents WHERE path = $1`,
		path,
	).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return body, nil
}

func (s *PostgresStore) Put(ctx context.Context, path string, body []byte) error {
	if err := validatePath(path); err != nil {
		return err
	}
	if err := validateBody(path, body); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO documents (path, body, updated_at)
			 VALUES ($1, $2::jsonb, NOW())
			 ON CONFLICT (path) DO UPDATE
			 SET body = EXCLUDED.body, updated_at = NOW()`,
			path,
			string(body),
		); err != nil {
			return fmt.Errorf("upsert document: %w", err)
		}
		if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, changesChannel, path); err != nil {
			return fmt.Errorf("notify change: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) Delete(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, `DELETE FROM documents WHERE path = $1`, path)
		if err != nil {
			return fmt.Errorf("delete document: %w", err)
		}
		if cmd.RowsAffected() == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, changesChannel, path); err != nil {
			return fmt.Errorf("notify change: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) Subscribe(ctx context.Context, path string, fn ChangeFunc) (Unsubscribe, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}

	sub := s.hub.add(path, fn)
	body, err := s.Get(ctx, path)
	switch {
	case err == nil:
		sub.deliver(body)
	case !errors.Is(err, ErrNotFound):
		s.hub.remove(sub)
		return nil, err
	}
	return s.hub.unsubscribe(sub), nil
}

func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close stops the change listener. The pool is owned by the caller.
func (s *PostgresStore) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}
