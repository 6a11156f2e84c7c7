package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// A single connection serializes writers and keeps the foreign_keys
	// pragma (and :memory: databases in tests) pinned to one session.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStore) init() error {
	if _, err := s.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return err
	}

	query := `
	CREATE TABLE IF NOT EXISTS endpoints (
		id TEXT PRIMARY KEY,
		slug TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		is_persistent INTEGER NOT NULL DEFAULT 0,
		creator_ip TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		endpoint_id TEXT NOT NULL,
		method TEXT NOT NULL,
		headers TEXT NOT NULL DEFAULT '{}',
		body TEXT NOT NULL DEFAULT 'null',
		query_params TEXT NOT NULL DEFAULT '{}',
		ip TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		FOREIGN KEY(endpoint_id) REFERENCES endpoints(id) ON DELETE CASCADE
	);
	CREATE TABLE IF NOT EXISTS ip_registry (
		ip TEXT PRIMARY KEY,
		first_seen DATETIME NOT NULL,
		last_seen DATETIME NOT NULL,
		endpoint_usage INTEGER NOT NULL,
		request_usage INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_requests_endpoint_id ON requests(endpoint_id);
	CREATE INDEX IF NOT EXISTS idx_endpoints_expires_at ON endpoints(expires_at);
	`
	_, err := s.db.Exec(query)
	return err
}

func (s *SQLiteStore) CreateEndpoint(ctx context.Context, p CreateEndpointParams) (*Endpoint, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	// Seed the ledger on first sight of this IP; existing rows are left
	// alone so the quota check below sees the real remaining counters.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO ip_registry (ip, first_seen, last_seen, endpoint_usage, request_usage)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(ip) DO NOTHING
	`, p.CreatorIP, now, now, p.EndpointQuota, p.RequestQuota)
	if err != nil {
		return nil, 0, err
	}

	// Guarded decrement: zero rows affected means the quota is spent.
	res, err := tx.ExecContext(ctx, `
		UPDATE ip_registry
		SET endpoint_usage = endpoint_usage - 1, last_seen = ?
		WHERE ip = ? AND endpoint_usage > 0
	`, now, p.CreatorIP)
	if err != nil {
		return nil, 0, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, 0, err
	} else if n == 0 {
		return nil, 0, ErrEndpointQuota
	}

	ep := &Endpoint{
		ID:           uuid.New().String(),
		Slug:         p.Slug,
		Name:         p.Name,
		Description:  p.Description,
		CreatedAt:    now,
		ExpiresAt:    p.ExpiresAt,
		IsPersistent: p.IsPersistent,
		CreatorIP:    p.CreatorIP,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO endpoints (id, slug, name, description, created_at, expires_at, is_persistent, creator_ip)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ep.ID, ep.Slug, ep.Name, ep.Description, ep.CreatedAt, ep.ExpiresAt, ep.IsPersistent, ep.CreatorIP)
	if err != nil {
		return nil, 0, err
	}

	var remaining int
	err = tx.QueryRowContext(ctx, "SELECT endpoint_usage FROM ip_registry WHERE ip = ?", p.CreatorIP).Scan(&remaining)
	if err != nil {
		return nil, 0, err
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, err
	}
	return ep, remaining, nil
}

func (s *SQLiteStore) GetEndpointBySlug(ctx context.Context, slug string) (*Endpoint, error) {
	return scanEndpoint(s.db.QueryRowContext(ctx, `
		SELECT id, slug, name, description, created_at, expires_at, is_persistent, creator_ip
		FROM endpoints WHERE slug = ?
	`, slug))
}

func (s *SQLiteStore) GetEndpointByID(ctx context.Context, id string) (*Endpoint, error) {
	return scanEndpoint(s.db.QueryRowContext(ctx, `
		SELECT id, slug, name, description, created_at, expires_at, is_persistent, creator_ip
		FROM endpoints WHERE id = ?
	`, id))
}

func (s *SQLiteStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM endpoints WHERE slug = ?", slug).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) DeleteEndpoint(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM endpoints WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) AdmitRequest(ctx context.Context, slug string, req *Request) (*Request, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Re-read inside the transaction; the endpoint may have been deleted
	// since the handler's fast pre-check.
	ep, err := scanEndpoint(tx.QueryRowContext(ctx, `
		SELECT id, slug, name, description, created_at, expires_at, is_persistent, creator_ip
		FROM endpoints WHERE slug = ?
	`, slug))
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	if ep.CreatorIP != "" {
		var seen int
		err = tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM ip_registry WHERE ip = ?", ep.CreatorIP).Scan(&seen)
		if err != nil {
			return nil, err
		}
		if seen > 0 {
			// Compare-and-swap style decrement: the WHERE guard keeps
			// two racing admissions from driving the counter negative.
			res, err := tx.ExecContext(ctx, `
				UPDATE ip_registry
				SET request_usage = request_usage - 1, last_seen = ?
				WHERE ip = ? AND request_usage > 0
			`, now, ep.CreatorIP)
			if err != nil {
				return nil, err
			}
			if n, err := res.RowsAffected(); err != nil {
				return nil, err
			} else if n == 0 {
				return nil, ErrRequestQuota
			}
		}
	}

	stored := *req
	stored.ID = uuid.New().String()
	stored.EndpointID = ep.ID
	stored.CreatedAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO requests (id, endpoint_id, method, headers, body, query_params, ip, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, stored.ID, stored.EndpointID, stored.Method, string(stored.Headers), string(stored.Body),
		string(stored.QueryParams), stored.IP, stored.UserAgent, stored.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *SQLiteStore) GetRequest(ctx context.Context, id string) (*Request, error) {
	return scanRequest(s.db.QueryRowContext(ctx, `
		SELECT id, endpoint_id, method, headers, body, query_params, ip, user_agent, created_at
		FROM requests WHERE id = ?
	`, id))
}

func (s *SQLiteStore) ListRequests(ctx context.Context, endpointID string, limit, offset int) ([]*Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, endpoint_id, method, headers, body, query_params, ip, user_agent, created_at
		FROM requests
		WHERE endpoint_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, endpointID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reqs := []*Request{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

func (s *SQLiteStore) CountRequests(ctx context.Context, endpointID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM requests WHERE endpoint_id = ?", endpointID).Scan(&n)
	return n, err
}

func (s *SQLiteStore) DeleteRequest(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM requests WHERE id = ?", id)
	return err
}

func (s *SQLiteStore) GetLedger(ctx context.Context, ip string) (*LedgerEntry, error) {
	var e LedgerEntry
	err := s.db.QueryRowContext(ctx, `
		SELECT ip, first_seen, last_seen, endpoint_usage, request_usage
		FROM ip_registry WHERE ip = ?
	`, ip).Scan(&e.IP, &e.FirstSeen, &e.LastSeen, &e.EndpointUsage, &e.RequestUsage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *SQLiteStore) SweepExpired(ctx context.Context, now time.Time) (int, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	var requests int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM requests WHERE endpoint_id IN (
			SELECT id FROM endpoints WHERE expires_at < ? AND is_persistent = 0
		)
	`, now).Scan(&requests)
	if err != nil {
		return 0, 0, err
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM endpoints WHERE expires_at < ? AND is_persistent = 0", now)
	if err != nil {
		return 0, 0, err
	}
	endpoints, err := res.RowsAffected()
	if err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return int(endpoints), requests, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEndpoint(row rowScanner) (*Endpoint, error) {
	var e Endpoint
	err := row.Scan(&e.ID, &e.Slug, &e.Name, &e.Description, &e.CreatedAt, &e.ExpiresAt, &e.IsPersistent, &e.CreatorIP)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func scanRequest(row rowScanner) (*Request, error) {
	var r Request
	var headers, body, query string
	err := row.Scan(&r.ID, &r.EndpointID, &r.Method, &headers, &body, &query, &r.IP, &r.UserAgent, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Headers = []byte(headers)
	r.Body = []byte(body)
	r.QueryParams = []byte(query)
	return &r, nil
}
