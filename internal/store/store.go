package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrEndpointQuota is returned when a creator has no endpoint
	// creations left.
	ErrEndpointQuota = errors.New("endpoint quota exhausted")
	// ErrRequestQuota is returned when a creator's endpoints have no
	// admitted requests left.
	ErrRequestQuota = errors.New("request quota exhausted")
)

// Endpoint is a temporary inbound address that accepts arbitrary HTTP calls.
// The slug is immutable once created.
type Endpoint struct {
	ID           string    `json:"id"`
	Slug         string    `json:"slug"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	IsPersistent bool      `json:"isPersistent"`
	CreatorIP    string    `json:"-"` // best-effort source identity, may be "unknown"
}

// Expired reports whether the endpoint's lifetime has lapsed.
func (e *Endpoint) Expired(now time.Time) bool {
	return e.ExpiresAt.Before(now)
}

// Request is the stored record of one inbound call made to an endpoint.
// Headers and QueryParams are JSON objects of name -> value list; Body is
// either the raw JSON value or a JSON string of the raw bytes.
type Request struct {
	ID          string          `json:"id"`
	EndpointID  string          `json:"endpointId"`
	Method      string          `json:"method"`
	Headers     json.RawMessage `json:"headers"`
	Body        json.RawMessage `json:"body"`
	QueryParams json.RawMessage `json:"queryParams"`
	IP          string          `json:"ip"`
	UserAgent   string          `json:"userAgent"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// LedgerEntry tracks per-source-IP usage. Counters only ever move down and
// never go negative; a transaction that would overdraw them aborts instead.
type LedgerEntry struct {
	IP            string    `json:"ip"`
	FirstSeen     time.Time `json:"firstSeen"`
	LastSeen      time.Time `json:"lastSeen"`
	EndpointUsage int       `json:"endpointUsage"`
	RequestUsage  int       `json:"requestUsage"`
}

// CreateEndpointParams carries everything the creation transaction needs.
// EndpointQuota and RequestQuota seed the ledger entry when the creator IP
// has not been seen before.
type CreateEndpointParams struct {
	Slug          string
	Name          string
	Description   string
	ExpiresAt     time.Time
	IsPersistent  bool
	CreatorIP     string
	EndpointQuota int
	RequestQuota  int
}

type Store interface {
	// CreateEndpoint inserts the endpoint and debits the creator's
	// endpoint quota in one transaction. It returns the created endpoint
	// and the creator's remaining endpoint usage, or ErrEndpointQuota
	// with nothing written.
	CreateEndpoint(ctx context.Context, p CreateEndpointParams) (*Endpoint, int, error)
	GetEndpointBySlug(ctx context.Context, slug string) (*Endpoint, error)
	GetEndpointByID(ctx context.Context, id string) (*Endpoint, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	// DeleteEndpoint removes the endpoint and, by cascade, all its
	// requests. Deleting an unknown id returns ErrNotFound.
	DeleteEndpoint(ctx context.Context, id string) error

	// AdmitRequest re-reads the endpoint, debits the creator's request
	// quota and inserts the request as one transaction. A quota of zero
	// aborts the whole transaction with ErrRequestQuota.
	AdmitRequest(ctx context.Context, slug string, req *Request) (*Request, error)
	GetRequest(ctx context.Context, id string) (*Request, error)
	ListRequests(ctx context.Context, endpointID string, limit, offset int) ([]*Request, error)
	CountRequests(ctx context.Context, endpointID string) (int, error)
	DeleteRequest(ctx context.Context, id string) error

	GetLedger(ctx context.Context, ip string) (*LedgerEntry, error)

	// SweepExpired bulk-deletes non-persistent endpoints whose expiry is
	// before now, cascading their requests. It returns the number of
	// endpoints and requests removed.
	SweepExpired(ctx context.Context, now time.Time) (endpoints int, requests int, err error)

	Close() error
}
