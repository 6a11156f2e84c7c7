// Package service implements the endpoint lifecycle and the webhook
// ingestion pipeline on top of the durable store, with the cache and the
// fan-out layer as best-effort collaborators.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hookbin/hookbin/internal/cache"
	"github.com/hookbin/hookbin/internal/logger"
	"github.com/hookbin/hookbin/internal/slug"
	"github.com/hookbin/hookbin/internal/store"
)

const (
	defaultDurationHours   = 24
	minDurationHours       = 1
	maxDurationHours       = 168 // 7 days
	persistentHorizonHours = 720 // 30 days; the sweeper skips persistent endpoints anyway
)

var (
	ErrEndpointNotFound = errors.New("endpoint not found")
	ErrEndpointExpired  = errors.New("endpoint has expired")
	ErrRequestNotFound  = errors.New("request not found")
	ErrEndpointQuota    = errors.New("endpoint limit reached for this IP, you have to upgrade to premium tier")
	ErrRequestQuota     = errors.New("request limit reached for this endpoint, you have to upgrade to premium tier")
	ErrInvalidJSON      = errors.New("request body is not valid JSON")
)

// Publisher is what the ingestion pipeline needs from the fan-out layer.
// Publishing is fire-and-forget; a failed or unheard publish is not an
// ingestion failure.
type Publisher interface {
	Publish(room, event string, data any)
	PublishGlobal(event string, data any)
}

// Options carries the tunables the service reads from config.
type Options struct {
	BaseURL       string
	SlugLength    int
	EndpointQuota int
	RequestQuota  int
}

type Service struct {
	store store.Store
	cache cache.Cache
	pub   Publisher
	log   *logger.Logger
	opts  Options
}

func New(st store.Store, ca cache.Cache, pub Publisher, log *logger.Logger, opts Options) *Service {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Service{
		store: st,
		cache: ca,
		pub:   pub,
		log:   log,
		opts:  opts,
	}
}

// EndpointView is the public shape of an endpoint.
type EndpointView struct {
	ID           string    `json:"id"`
	Slug         string    `json:"slug"`
	URL          string    `json:"url"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	IsPersistent bool      `json:"isPersistent"`
}

// CreateEndpointResult adds the creator's remaining endpoint quota to the
// view so clients can show how many endpoints they have left.
type CreateEndpointResult struct {
	EndpointView
	EndpointUsage int `json:"endpointUsage"`
}

type CreateEndpointInput struct {
	Name        string
	Description string
	Duration    int // requested lifetime in hours; 0 means the default
	Persistent  bool
	CreatorIP   string
}

// Pagination describes one page of a request listing.
type Pagination struct {
	Total int `json:"total"`
	Pages int `json:"pages"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

type RequestPage struct {
	Requests   []*store.Request `json:"requests"`
	Pagination Pagination       `json:"pagination"`
}

// CreateEndpoint mints a new endpoint: slug generation, quota debit and
// the insert run as one store transaction, then the slug is mirrored into
// the cache best-effort.
func (s *Service) CreateEndpoint(ctx context.Context, in CreateEndpointInput) (*CreateEndpointResult, error) {
	hours := clampDuration(in.Duration)
	if in.Persistent {
		hours = persistentHorizonHours
	}
	expiresAt := time.Now().UTC().Add(time.Duration(hours) * time.Hour)

	sl, err := slug.Generate(ctx, s.opts.SlugLength, s.store.SlugExists)
	if err != nil {
		return nil, fmt.Errorf("generate slug: %w", err)
	}

	name := in.Name
	if name == "" {
		name = "Webhook " + sl
	}

	creatorIP := in.CreatorIP
	if creatorIP == "" {
		creatorIP = UnknownIP
	}

	ep, remaining, err := s.store.CreateEndpoint(ctx, store.CreateEndpointParams{
		Slug:          sl,
		Name:          name,
		Description:   in.Description,
		ExpiresAt:     expiresAt,
		IsPersistent:  in.Persistent,
		CreatorIP:     creatorIP,
		EndpointQuota: s.opts.EndpointQuota,
		RequestQuota:  s.opts.RequestQuota,
	})
	if errors.Is(err, store.ErrEndpointQuota) {
		return nil, ErrEndpointQuota
	}
	if err != nil {
		return nil, err
	}

	// Best-effort mirror; the entry self-expires with the endpoint.
	if err := s.cache.RegisterSlug(ctx, ep.Slug, ep.ID, time.Until(ep.ExpiresAt)); err != nil {
		s.log.Warn("cache: register slug failed", "slug", ep.Slug, "error", err.Error())
	}

	return &CreateEndpointResult{
		EndpointView:  s.view(ep),
		EndpointUsage: remaining,
	}, nil
}

// GetEndpoint resolves a slug, distinguishing "never existed" from
// "existed but lapsed".
func (s *Service) GetEndpoint(ctx context.Context, sl string) (*EndpointView, error) {
	ep, err := s.store.GetEndpointBySlug(ctx, sl)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrEndpointNotFound
	}
	if err != nil {
		return nil, err
	}
	if ep.Expired(time.Now()) {
		return nil, ErrEndpointExpired
	}
	v := s.view(ep)
	return &v, nil
}

// ListRequests returns one newest-first page of captures for a slug.
// Out-of-range pages come back empty, not as errors.
func (s *Service) ListRequests(ctx context.Context, sl string, limit, page int) (*RequestPage, error) {
	if limit < 1 {
		limit = 50
	}
	if page < 1 {
		page = 1
	}

	ep, err := s.store.GetEndpointBySlug(ctx, sl)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrEndpointNotFound
	}
	if err != nil {
		return nil, err
	}
	if ep.Expired(time.Now()) && !ep.IsPersistent {
		return nil, ErrEndpointExpired
	}

	requests, err := s.store.ListRequests(ctx, ep.ID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	total, err := s.store.CountRequests(ctx, ep.ID)
	if err != nil {
		return nil, err
	}

	return &RequestPage{
		Requests: requests,
		Pagination: Pagination{
			Total: total,
			Pages: (total + limit - 1) / limit,
			Page:  page,
			Limit: limit,
		},
	}, nil
}

// DeleteEndpoint removes the endpoint, cascades its requests and evicts
// the slug from the cache.
func (s *Service) DeleteEndpoint(ctx context.Context, sl string) error {
	ep, err := s.store.GetEndpointBySlug(ctx, sl)
	if errors.Is(err, store.ErrNotFound) {
		return ErrEndpointNotFound
	}
	if err != nil {
		return err
	}

	if err := s.store.DeleteEndpoint(ctx, ep.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrEndpointNotFound
		}
		return err
	}

	if err := s.cache.EvictSlug(ctx, sl); err != nil {
		s.log.Warn("cache: evict slug failed", "slug", sl, "error", err.Error())
	}

	return nil
}

// DeleteRequest removes a single capture. Unknown ids are a no-op.
func (s *Service) DeleteRequest(ctx context.Context, id string) error {
	return s.store.DeleteRequest(ctx, id)
}

// GetRequest loads a single capture, for replay.
func (s *Service) GetRequest(ctx context.Context, id string) (*store.Request, error) {
	req, err := s.store.GetRequest(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRequestNotFound
	}
	return req, err
}

// EndpointSlug resolves an endpoint id back to its slug, for replay.
func (s *Service) EndpointSlug(ctx context.Context, endpointID string) (string, error) {
	ep, err := s.store.GetEndpointByID(ctx, endpointID)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrEndpointNotFound
	}
	if err != nil {
		return "", err
	}
	return ep.Slug, nil
}

// CaptureInput is one inbound webhook call, any method, any content type.
type CaptureInput struct {
	Slug         string
	Method       string
	Headers      http.Header
	Query        url.Values
	Body         []byte
	ContentType  string
	ForwardedFor string
	RemoteAddr   string
	UserAgent    string
}

// Capture is the ingestion pipeline: validate against endpoint state,
// admit atomically (quota debit + insert in one transaction), then fan
// out to live subscribers and bump the activity counter.
func (s *Service) Capture(ctx context.Context, in CaptureInput) (*store.Request, error) {
	// Fast rejection before any transaction.
	ep, err := s.store.GetEndpointBySlug(ctx, in.Slug)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrEndpointNotFound
	}
	if err != nil {
		return nil, err
	}
	if ep.Expired(time.Now()) {
		return nil, ErrEndpointExpired
	}

	body, err := normalizeBody(in.ContentType, in.Body)
	if err != nil {
		return nil, err
	}

	headersJSON, err := json.Marshal(in.Headers)
	if err != nil {
		return nil, err
	}
	queryJSON, err := json.Marshal(in.Query)
	if err != nil {
		return nil, err
	}

	req := &store.Request{
		Method:      in.Method,
		Headers:     headersJSON,
		Body:        body,
		QueryParams: queryJSON,
		IP:          ClientIP(in.ForwardedFor, in.RemoteAddr),
		UserAgent:   in.UserAgent,
	}

	stored, err := s.store.AdmitRequest(ctx, in.Slug, req)
	if errors.Is(err, store.ErrNotFound) {
		// Deleted between the fast check and the transaction.
		return nil, ErrEndpointNotFound
	}
	if errors.Is(err, store.ErrRequestQuota) {
		return nil, ErrRequestQuota
	}
	if err != nil {
		return nil, err
	}

	// Room delivery plus the global fallback channel; subscribers
	// de-duplicate by request id.
	s.pub.Publish(in.Slug, "new-request", stored)
	s.pub.PublishGlobal("webhook:"+in.Slug, stored)

	if err := s.cache.BumpActivity(ctx, in.Slug); err != nil {
		s.log.Warn("cache: activity bump failed", "slug", in.Slug, "error", err.Error())
	}

	return stored, nil
}

func (s *Service) view(ep *store.Endpoint) EndpointView {
	return EndpointView{
		ID:           ep.ID,
		Slug:         ep.Slug,
		URL:          s.CaptureURL(ep.Slug),
		Name:         ep.Name,
		Description:  ep.Description,
		CreatedAt:    ep.CreatedAt,
		ExpiresAt:    ep.ExpiresAt,
		IsPersistent: ep.IsPersistent,
	}
}

// CaptureURL is the public address third parties POST to.
func (s *Service) CaptureURL(sl string) string {
	return s.opts.BaseURL + "/api/hooks/" + sl
}

func clampDuration(hours int) int {
	if hours == 0 {
		return defaultDurationHours
	}
	if hours < minDurationHours {
		return minDurationHours
	}
	if hours > maxDurationHours {
		return maxDurationHours
	}
	return hours
}

// normalizeBody keeps JSON bodies structured and wraps everything else as
// an opaque JSON string. A declared-JSON body that does not parse is a
// validation error, caught before the admission transaction.
func normalizeBody(contentType string, body []byte) (json.RawMessage, error) {
	if len(body) == 0 {
		return json.RawMessage("null"), nil
	}
	if strings.Contains(contentType, "application/json") {
		if !json.Valid(body) {
			return nil, ErrInvalidJSON
		}
		return json.RawMessage(body), nil
	}
	quoted, err := json.Marshal(string(body))
	if err != nil {
		return nil, err
	}
	return quoted, nil
}
