// Package idempotency replays the stored response of a completed request that
// is retried with the same Idempotency-Key.
package idempotency

import (
	"context"
	"errors"
	"sync"
)

// FingerprintField is the response member holding the request fingerprint.
const FingerprintField = "request_fingerprint"

var ErrKeyReused = errors.New("idempotency: key reused with a different request")

// Request identifies a retryable call. Scope narrows the key, typically to
// the session the request acts on. A non-empty Fingerprint must match the
// one saved with the first response for the key to replay.
type Request struct {
	Scope          string
	IdempotencyKey string
	Fingerprint    string
}

type Store interface {
	GetIdempotencyRecord(ctx context.Context, scope, idempotencyKey, endpoint string) (int, map[string]any, bool, error)
	SaveIdempotencyRecord(ctx context.Context, scope, idempotencyKey, endpoint string, responseStatus int, responseBody map[string]any) error
}

func Replay(ctx context.Context, st Store, req Request, endpoint string) (int, map[string]any, bool, error) {
	if req.IdempotencyKey == "" {
		return 0, nil, false, nil
	}
	status, body, found, err := st.GetIdempotencyRecord(ctx, req.Scope, req.IdempotencyKey, endpoint)
	if err != nil {
		return 0, nil, false, err
	}
	if !found {
		return 0, nil, false, nil
	}
	if req.Fingerprint != "" {
		if prev, _ := body[FingerprintField].(string); prev != "" && prev != req.Fingerprint {
			return 0, nil, false, ErrKeyReused
		}
	}
	return status, body, true, nil
}

func Save(ctx context.Context, st Store, req Request, endpoint string, status int, response map[string]any) error {
	if req.IdempotencyKey == "" {
		return nil
	}
	if req.Fingerprint != "" {
		if response == nil {
			response = map[string]any{}
		}
		response[FingerprintField] = req.Fingerprint
	}
	return st.SaveIdempotencyRecord(ctx, req.Scope, req.IdempotencyKey, endpoint, status, response)
}

type recordKey struct{ scope, key, endpoint string }

type record struct {
	status int
	body   map[string]any
}

// Memory is an in-process Store. The first saved response for a key wins.
type Memory struct {
	mu      sync.Mutex
	records map[recordKey]record
}

func NewMemory() *Memory { return &Memory{records: map[recordKey]record{}} }

func (m *Memory) GetIdempotencyRecord(_ context.Context, scope, idempotencyKey, endpoint string) (int, map[string]any, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[recordKey{scope, idempotencyKey, endpoint}]
	if !ok {
		return 0, nil, false, nil
	}
	return r.status, r.body, true, nil
}

func (m *Memory) SaveIdempotencyRecord(_ context.Context, scope, idempotencyKey, endpoint string, responseStatus int, responseBody map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := recordKey{scope, idempotencyKey, endpoint}
	if _, exists := m.records[k]; exists {
		return nil
	}
	m.records[k] = record{status: responseStatus, body: responseBody}
	return nil
}
