package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testParams(slug, ip string) CreateEndpointParams {
	return CreateEndpointParams{
		Slug:          slug,
		Name:          "Webhook " + slug,
		ExpiresAt:     time.Now().UTC().Add(24 * time.Hour),
		CreatorIP:     ip,
		EndpointQuota: 5,
		RequestQuota:  500,
	}
}

func testRequest() *Request {
	return &Request{
		Method:      "POST",
		Headers:     json.RawMessage(`{"Content-Type":["application/json"]}`),
		Body:        json.RawMessage(`{"a":1}`),
		QueryParams: json.RawMessage(`{}`),
		IP:          "203.0.113.7",
		UserAgent:   "test-agent",
	}
}

func TestCreateEndpointDebitsQuota(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := testParams("aaaa1111", "198.51.100.1")
	p.EndpointQuota = 2

	_, remaining, err := s.CreateEndpoint(ctx, p)
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if remaining != 1 {
		t.Errorf("expected 1 remaining, got %d", remaining)
	}

	p.Slug = "bbbb2222"
	_, remaining, err = s.CreateEndpoint(ctx, p)
	if err != nil {
		t.Fatalf("second create failed: %v", err)
	}
	if remaining != 0 {
		t.Errorf("expected 0 remaining, got %d", remaining)
	}

	p.Slug = "cccc3333"
	_, _, err = s.CreateEndpoint(ctx, p)
	if !errors.Is(err, ErrEndpointQuota) {
		t.Fatalf("expected ErrEndpointQuota, got %v", err)
	}

	// The failed transaction must leave no endpoint row behind.
	exists, err := s.SlugExists(ctx, "cccc3333")
	if err != nil {
		t.Fatalf("SlugExists failed: %v", err)
	}
	if exists {
		t.Error("endpoint row survived a failed creation transaction")
	}

	// Ledger never goes negative.
	entry, err := s.GetLedger(ctx, "198.51.100.1")
	if err != nil {
		t.Fatalf("GetLedger failed: %v", err)
	}
	if entry.EndpointUsage != 0 {
		t.Errorf("expected endpoint usage 0, got %d", entry.EndpointUsage)
	}
}

func TestLedgerSeededOnFirstCreate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.CreateEndpoint(ctx, testParams("aaaa1111", "198.51.100.9"))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	entry, err := s.GetLedger(ctx, "198.51.100.9")
	if err != nil {
		t.Fatalf("GetLedger failed: %v", err)
	}
	if entry.EndpointUsage != 4 {
		t.Errorf("expected endpoint usage 4 after first create, got %d", entry.EndpointUsage)
	}
	if entry.RequestUsage != 500 {
		t.Errorf("expected request usage 500, got %d", entry.RequestUsage)
	}
	if entry.FirstSeen.IsZero() || entry.LastSeen.IsZero() {
		t.Error("expected first/last seen to be set")
	}
}

func TestAdmitRequestDecrementsQuota(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := testParams("aaaa1111", "198.51.100.2")
	p.RequestQuota = 2
	ep, _, err := s.CreateEndpoint(ctx, p)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := s.AdmitRequest(ctx, "aaaa1111", testRequest()); err != nil {
		t.Fatalf("first admit failed: %v", err)
	}
	if _, err := s.AdmitRequest(ctx, "aaaa1111", testRequest()); err != nil {
		t.Fatalf("second admit failed: %v", err)
	}

	_, err = s.AdmitRequest(ctx, "aaaa1111", testRequest())
	if !errors.Is(err, ErrRequestQuota) {
		t.Fatalf("expected ErrRequestQuota, got %v", err)
	}

	// No half-written request from the rejected admission.
	count, err := s.CountRequests(ctx, ep.ID)
	if err != nil {
		t.Fatalf("CountRequests failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 stored requests, got %d", count)
	}

	entry, _ := s.GetLedger(ctx, "198.51.100.2")
	if entry.RequestUsage != 0 {
		t.Errorf("expected request usage 0, got %d", entry.RequestUsage)
	}
}

func TestAdmitRequestConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := testParams("aaaa1111", "198.51.100.3")
	p.RequestQuota = 1
	if _, _, err := s.CreateEndpoint(ctx, p); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	const attempts = 2
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AdmitRequest(ctx, "aaaa1111", testRequest())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	admitted, rejected := 0, 0
	for err := range results {
		switch {
		case err == nil:
			admitted++
		case errors.Is(err, ErrRequestQuota):
			rejected++
		default:
			t.Fatalf("unexpected admit error: %v", err)
		}
	}
	if admitted != 1 || rejected != 1 {
		t.Errorf("expected 1 admitted and 1 rejected, got %d/%d", admitted, rejected)
	}

	entry, _ := s.GetLedger(ctx, "198.51.100.3")
	if entry.RequestUsage != 0 {
		t.Errorf("counter must end at 0, never negative; got %d", entry.RequestUsage)
	}
}

func TestAdmitRequestUnknownSlug(t *testing.T) {
	s := newTestStore(t)

	_, err := s.AdmitRequest(context.Background(), "nope1234", testRequest())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteEndpointCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ep, _, err := s.CreateEndpoint(ctx, testParams("aaaa1111", "198.51.100.4"))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	var lastID string
	for i := 0; i < 3; i++ {
		stored, err := s.AdmitRequest(ctx, "aaaa1111", testRequest())
		if err != nil {
			t.Fatalf("admit failed: %v", err)
		}
		lastID = stored.ID
	}

	if err := s.DeleteEndpoint(ctx, ep.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	count, err := s.CountRequests(ctx, ep.ID)
	if err != nil {
		t.Fatalf("CountRequests failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 requests after cascade, got %d", count)
	}
	if _, err := s.GetRequest(ctx, lastID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected cascaded request to be gone, got %v", err)
	}

	if err := s.DeleteEndpoint(ctx, ep.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestDeleteRequestIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, _, err := s.CreateEndpoint(ctx, testParams("aaaa1111", "198.51.100.5")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	stored, err := s.AdmitRequest(ctx, "aaaa1111", testRequest())
	if err != nil {
		t.Fatalf("admit failed: %v", err)
	}

	if err := s.DeleteRequest(ctx, stored.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := s.DeleteRequest(ctx, stored.ID); err != nil {
		t.Errorf("second delete should be a no-op, got %v", err)
	}
	if err := s.DeleteRequest(ctx, "never-existed"); err != nil {
		t.Errorf("deleting unknown id should be a no-op, got %v", err)
	}
}

func TestSweepExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	expired := testParams("dead1111", "198.51.100.6")
	expired.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	if _, _, err := s.CreateEndpoint(ctx, expired); err != nil {
		t.Fatalf("create expired failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := s.AdmitRequest(ctx, "dead1111", testRequest()); err != nil {
			t.Fatalf("admit failed: %v", err)
		}
	}

	persistent := testParams("keep1111", "198.51.100.6")
	persistent.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	persistent.IsPersistent = true
	if _, _, err := s.CreateEndpoint(ctx, persistent); err != nil {
		t.Fatalf("create persistent failed: %v", err)
	}

	live := testParams("live1111", "198.51.100.6")
	if _, _, err := s.CreateEndpoint(ctx, live); err != nil {
		t.Fatalf("create live failed: %v", err)
	}

	endpoints, requests, err := s.SweepExpired(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if endpoints != 1 {
		t.Errorf("expected 1 endpoint swept, got %d", endpoints)
	}
	if requests != 2 {
		t.Errorf("expected 2 requests swept, got %d", requests)
	}

	if _, err := s.GetEndpointBySlug(ctx, "dead1111"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired endpoint should be gone, got %v", err)
	}
	if _, err := s.GetEndpointBySlug(ctx, "keep1111"); err != nil {
		t.Errorf("persistent endpoint must survive the sweep: %v", err)
	}
	if _, err := s.GetEndpointBySlug(ctx, "live1111"); err != nil {
		t.Errorf("live endpoint must survive the sweep: %v", err)
	}
}
