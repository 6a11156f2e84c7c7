package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hookbin/hookbin/internal/logger"
	"github.com/hookbin/hookbin/internal/store"
)

func seedEndpoint(t *testing.T, st store.Store, slug string, expiresAt time.Time, persistent bool, requests int) {
	t.Helper()
	_, _, err := st.CreateEndpoint(context.Background(), store.CreateEndpointParams{
		Slug:          slug,
		Name:          "Webhook " + slug,
		ExpiresAt:     expiresAt,
		IsPersistent:  persistent,
		CreatorIP:     "198.51.100.1",
		EndpointQuota: 100,
		RequestQuota:  500,
	})
	if err != nil {
		t.Fatalf("seed endpoint %s: %v", slug, err)
	}
	for i := 0; i < requests; i++ {
		_, err := st.AdmitRequest(context.Background(), slug, &store.Request{
			Method:      "POST",
			Headers:     []byte(`{}`),
			Body:        []byte(`null`),
			QueryParams: []byte(`{}`),
			IP:          "203.0.113.7",
		})
		if err != nil {
			t.Fatalf("seed request for %s: %v", slug, err)
		}
	}
}

func TestSweepRemovesExpiredWithCounts(t *testing.T) {
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer st.Close()

	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)

	seedEndpoint(t, st, "dead1111", past, false, 3)
	seedEndpoint(t, st, "dead2222", past, false, 2)
	seedEndpoint(t, st, "keep1111", past, true, 1) // persistent, never reclaimed
	seedEndpoint(t, st, "live1111", future, false, 1)

	sw := New(st, logger.Discard(), 30*time.Minute)

	endpoints, requests, err := sw.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if endpoints != 2 {
		t.Errorf("expected 2 endpoints removed, got %d", endpoints)
	}
	if requests != 5 {
		t.Errorf("expected 5 requests removed, got %d", requests)
	}

	for _, slug := range []string{"keep1111", "live1111"} {
		if _, err := st.GetEndpointBySlug(context.Background(), slug); err != nil {
			t.Errorf("%s must survive the sweep: %v", slug, err)
		}
	}
	if _, err := st.GetEndpointBySlug(context.Background(), "dead1111"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected dead1111 gone, got %v", err)
	}

	// A second pass finds nothing.
	endpoints, requests, err = sw.Sweep(context.Background())
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if endpoints != 0 || requests != 0 {
		t.Errorf("expected empty second sweep, got %d/%d", endpoints, requests)
	}
}
