package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	"legalscan/pkg/db"
)

func TestMemoryPutGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if _, err := m.Get(ctx, SourceKey("ses_1")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	data := []byte("docx bytes")
	if err := m.Put(ctx, SourceKey("ses_1"), data); err != nil {
		t.Fatalf("put: %v", err)
	}
	data[0] = 'X'
	got, err := m.Get(ctx, SourceKey("ses_1"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "docx bytes" {
		t.Fatalf("stored bytes must not alias the caller's slice, got %q", got)
	}
	if _, err := m.Get(ctx, FilledKey("ses_1")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("filled artifact must be a separate key")
	}
}

func TestLocksAllowOneHolderPerKey(t *testing.T) {
	l := NewLocks()
	unlock, ok := l.TryLock("ses_1")
	if !ok {
		t.Fatalf("expected first lock to succeed")
	}
	if _, ok := l.TryLock("ses_1"); ok {
		t.Fatalf("expected second lock to fail")
	}
	if _, ok := l.TryLock("ses_2"); !ok {
		t.Fatalf("other sessions must not be blocked")
	}
	unlock()
	unlock()
	if _, ok := l.TryLock("ses_1"); !ok {
		t.Fatalf("expected lock after release")
	}
}

func TestLocksUnderContention(t *testing.T) {
	l := NewLocks()
	var winners int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := l.TryLock("ses_hot"); ok {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	close(start)
	wg.Wait()
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestMapS3Error(t *testing.T) {
	if !errors.Is(mapS3Error(minio.ErrorResponse{Code: "NoSuchKey"}), ErrNotFound) {
		t.Fatalf("NoSuchKey must map to ErrNotFound")
	}
	other := minio.ErrorResponse{Code: "AccessDenied"}
	if errors.Is(mapS3Error(other), ErrNotFound) {
		t.Fatalf("AccessDenied must not map to ErrNotFound")
	}
}

func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()
	st := NewPostgres(pool)
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	key := SourceKey("ses_" + uuid.NewString())
	if _, err := st.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	for _, content := range [][]byte{[]byte("v1"), []byte("v2")} {
		if err := st.Put(ctx, key, content); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	got, err := st.Get(ctx, key)
	if err != nil || !bytes.Equal(got, []byte("v2")) {
		t.Fatalf("expected overwrite, got %q err=%v", got, err)
	}

	scope := "ses_" + uuid.NewString()
	if err := st.SaveIdempotencyRecord(ctx, scope, "k1", "POST /template-fill/complete", 200, map[string]any{"sha256": "abc"}); err != nil {
		t.Fatalf("save idempotency: %v", err)
	}
	status, body, found, err := st.GetIdempotencyRecord(ctx, scope, "k1", "POST /template-fill/complete")
	if err != nil || !found || status != 200 || body["sha256"] != "abc" {
		t.Fatalf("unexpected idempotency record: %d %v %v %v", status, body, found, err)
	}
}

func TestS3RoundTrip(t *testing.T) {
	endpoint := os.Getenv("TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("TEST_S3_ENDPOINT not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	st, err := NewS3(S3Options{
		Endpoint:  endpoint,
		Bucket:    "template-fill-test",
		AccessKey: os.Getenv("TEST_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("TEST_S3_SECRET_KEY"),
		Region:    "us-east-1",
	})
	if err != nil {
		t.Fatalf("new s3: %v", err)
	}
	if err := st.EnsureBucket(ctx, "us-east-1"); err != nil {
		t.Fatalf("ensure bucket: %v", err)
	}
	key := FilledKey("ses_" + uuid.NewString())
	if _, err := st.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := st.Put(ctx, key, []byte("filled")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := st.Get(ctx, key)
	if err != nil || string(got) != "filled" {
		t.Fatalf("unexpected get: %q %v", got, err)
	}
	u, err := st.PresignGet(ctx, key, time.Minute)
	if err != nil || u == "" {
		t.Fatalf("presign: %q %v", u, err)
	}
}
