package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres keeps artifacts and idempotency records in two tables created by
// Migrate.
type Postgres struct{ DB *pgxpool.Pool }

func NewPostgres(db *pgxpool.Pool) *Postgres { return &Postgres{DB: db} }

func (s *Postgres) Migrate(ctx context.Context) error {
	_, err := s.DB.Exec(ctx, `
CREATE TABLE IF NOT EXISTS template_fill_artifacts (
  artifact_key TEXT PRIMARY KEY,
  content BYTEA NOT NULL,
  sha256 TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS template_fill_idempotency (
  scope TEXT NOT NULL,
  idempotency_key TEXT NOT NULL,
  endpoint TEXT NOT NULL,
  response_status INT NOT NULL,
  response_body JSONB NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (scope, idempotency_key, endpoint)
);`)
	return err
}

func (s *Postgres) Put(ctx context.Context, key string, data []byte) error {
	sum := sha256.Sum256(data)
	_, err := s.DB.Exec(ctx, `
INSERT INTO template_fill_artifacts(artifact_key,content,sha256)
VALUES($1,$2,$3)
ON CONFLICT (artifact_key) DO UPDATE SET content=$2, sha256=$3, updated_at=now()
`, key, data, hex.EncodeToString(sum[:]))
	return err
}

func (s *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	var content []byte
	err := s.DB.QueryRow(ctx, `SELECT content FROM template_fill_artifacts WHERE artifact_key=$1`, key).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return content, nil
}

func (s *Postgres) GetIdempotencyRecord(ctx context.Context, scope, idempotencyKey, endpoint string) (int, map[string]any, bool, error) {
	var (
		status int
		raw    []byte
	)
	err := s.DB.QueryRow(ctx, `
SELECT response_status, response_body FROM template_fill_idempotency
WHERE scope=$1 AND idempotency_key=$2 AND endpoint=$3
`, scope, idempotencyKey, endpoint).Scan(&status, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, err
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return 0, nil, false, err
	}
	return status, body, true, nil
}

func (s *Postgres) SaveIdempotencyRecord(ctx context.Context, scope, idempotencyKey, endpoint string, responseStatus int, responseBody map[string]any) error {
	b, err := json.Marshal(responseBody)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
INSERT INTO template_fill_idempotency(scope,idempotency_key,endpoint,response_status,response_body)
VALUES($1,$2,$3,$4,$5::jsonb)
ON CONFLICT (scope,idempotency_key,endpoint) DO NOTHING
`, scope, idempotencyKey, endpoint, responseStatus, string(b))
	return err
}
