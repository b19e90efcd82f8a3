// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cardtransfer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Registry API routes. The base URL comes from Settings.RegistryURI.
const (
	routeCardsList     = "/api/cards/list"
	routeModelsResolve = "/api/models/resolve"
	routeFilePresigned = "/api/files/presigned"
	routeMetrics       = "/api/metrics"
)

// resolveRequest is the body of the card resolution call.
type resolveRequest struct {
	Name                    string `json:"name,omitempty"`
	Repository              string `json:"repository,omitempty"`
	Version                 string `json:"version,omitempty"`
	UID                     string `json:"uid,omitempty"`
	IgnoreReleaseCandidates bool   `json:"ignore_release_candidates"`
}

// ListCardsRequest filters a card listing.
type ListCardsRequest struct {
	RegistryType            string            `json:"registry_type"`
	Name                    string            `json:"name,omitempty"`
	Repository              string            `json:"repository,omitempty"`
	Version                 string            `json:"version,omitempty"`
	UID                     string            `json:"uid,omitempty"`
	Limit                   int               `json:"limit,omitempty"`
	Tags                    map[string]string `json:"tags,omitempty"`
	MaxDate                 string            `json:"max_date,omitempty"`
	IgnoreReleaseCandidates bool              `json:"ignore_release_candidates"`
}

// CardSummary is one row of a card listing.
type CardSummary struct {
	UID        string            `json:"uid"`
	Name       string            `json:"name"`
	Repository string            `json:"repository"`
	Version    string            `json:"version"`
	Date       string            `json:"date,omitempty"`
	Contact    string            `json:"contact,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
}

type listCardsResponse struct {
	Cards []CardSummary `json:"cards"`
}

// Metric is one recorded metric value for a run.
type Metric struct {
	RunUID    string          `json:"run_uid"`
	Name      string          `json:"name"`
	Value     json.RawMessage `json:"value"`
	Step      json.RawMessage `json:"step,omitempty"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

type listMetricsResponse struct {
	Metric []Metric `json:"metric"`
}

type presignedResponse struct {
	URL string `json:"url"`
}

// Client talks to the artifact registry. All calls carry the bearer
// credential and retry transient failures with exponential backoff before
// surfacing ErrRegistryUnavailable.
type Client struct {
	base    string
	token   string
	httpc   *http.Client
	retries int
	cfg     Settings
	log     logrus.FieldLogger
}

// NewClient builds a registry client from settings.
func NewClient(cfg Settings, log logrus.FieldLogger) (*Client, error) {
	base := strings.TrimSuffix(strings.TrimSpace(cfg.RegistryURI), "/")
	if base == "" {
		return nil, fmt.Errorf("missing registry URI (set --registry-uri or CARDCTL_REGISTRY_URI)")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid registry URI %q: %w", cfg.RegistryURI, err)
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = 3
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Client{
		base:    base,
		token:   cfg.Token,
		httpc:   buildHTTPClient(),
		retries: retries,
		cfg:     cfg,
		log:     log,
	}, nil
}

// buildHTTPClient creates an HTTP client with sensible defaults.
func buildHTTPClient() *http.Client {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: tr}
}

// addAuth adds authentication and user-agent headers to a request.
func (c *Client) addAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("User-Agent", "cardctl/1")
}

// doJSON performs one registry call with retry, decoding the response body
// into out. Transient failures (connection errors, 429, 5xx) are retried;
// terminal statuses surface as *APIError.
func (c *Client) doJSON(ctx context.Context, method, route string, query url.Values, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	reqURL := c.base + route
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	retry := newRetry(c.cfg)
	var lastErr error

	for attempt := 0; attempt <= c.retries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, rd)
		if err != nil {
			return err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		c.addAuth(req)

		resp, err := c.httpc.Do(req)
		if err != nil {
			lastErr = err
		} else {
			lastErr = decodeResponse(resp, out)
			if lastErr == nil {
				return nil
			}
			var apiErr *APIError
			if errors.As(lastErr, &apiErr) && !apiErr.IsRetryable() {
				return lastErr
			}
		}

		if attempt < c.retries {
			c.log.WithFields(logrus.Fields{
				"route":   route,
				"attempt": attempt + 1,
			}).Debugf("registry call failed, retrying: %v", lastErr)
			if !sleepCtx(ctx, retry.Next()) {
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("%w: %s after %d attempts: %v", ErrRegistryUnavailable, route, c.retries+1, lastErr)
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Message:    strings.TrimSpace(string(msg)),
			URL:        resp.Request.URL.String(),
		}
	}
	if out == nil {
		_, err := io.Copy(io.Discard, resp.Body)
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ResolveCard asks the registry for the card matching the (already
// validated) query. A 404 surfaces as ErrNotFound.
func (c *Client) ResolveCard(ctx context.Context, q Query) (*Card, error) {
	req := resolveRequest{
		Name:                    q.Name,
		Repository:              q.Repository,
		Version:                 q.Version,
		UID:                     q.UID,
		IgnoreReleaseCandidates: q.IgnoreReleaseCandidates,
	}
	var card Card
	if err := c.doJSON(ctx, http.MethodPost, routeModelsResolve, nil, req, &card); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, queryString(q))
		}
		return nil, err
	}
	if err := validateCard(&card); err != nil {
		return nil, fmt.Errorf("registry returned an incomplete card for %s: %w", queryString(q), err)
	}
	return &card, nil
}

// validateCard rejects resolution responses that cannot be verified later.
// The artifacts block is the authoritative source of locator, size and
// checksum; an artifact missing any of them would silently weaken the
// integrity gate, so it is refused here instead.
func validateCard(card *Card) error {
	if card.UID == "" {
		return fmt.Errorf("missing uid")
	}
	if err := validateArtifact(KindModel, card.Artifacts.Model); err != nil {
		return err
	}
	if card.Artifacts.Onnx != nil {
		if err := validateArtifact(KindOnnx, *card.Artifacts.Onnx); err != nil {
			return err
		}
	}
	if card.Artifacts.Preprocessor != nil {
		if err := validateArtifact(KindPreprocessor, *card.Artifacts.Preprocessor); err != nil {
			return err
		}
	}
	return nil
}

func validateArtifact(kind ArtifactKind, a Artifact) error {
	switch {
	case a.URI == "":
		return fmt.Errorf("%s artifact has no uri", kind)
	case a.Size <= 0:
		return fmt.Errorf("%s artifact has no size", kind)
	case a.SHA256 == "":
		return fmt.Errorf("%s artifact has no sha256", kind)
	}
	return nil
}

// ListCards lists cards matching the request filters.
func (c *Client) ListCards(ctx context.Context, req ListCardsRequest) ([]CardSummary, error) {
	var resp listCardsResponse
	if err := c.doJSON(ctx, http.MethodPost, routeCardsList, nil, req, &resp); err != nil {
		return nil, err
	}
	return resp.Cards, nil
}

// PresignURL exchanges a storage locator for a short-lived, byte-range
// capable download URL.
func (c *Client) PresignURL(ctx context.Context, locator string) (string, error) {
	query := url.Values{}
	query.Set("path", locator)
	query.Set("method", http.MethodGet)
	var resp presignedResponse
	if err := c.doJSON(ctx, http.MethodGet, routeFilePresigned, query, nil, &resp); err != nil {
		return "", err
	}
	if resp.URL == "" {
		return "", fmt.Errorf("registry returned an empty presigned url for %s", locator)
	}
	return resp.URL, nil
}

// ListMetrics lists the recorded metrics for a run uid.
func (c *Client) ListMetrics(ctx context.Context, runUID string) ([]Metric, error) {
	query := url.Values{}
	query.Set("run_uid", runUID)
	var resp listMetricsResponse
	if err := c.doJSON(ctx, http.MethodGet, routeMetrics, query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Metric, nil
}

func queryString(q Query) string {
	if q.UID != "" {
		return "uid " + q.UID
	}
	v := q.Version
	if v == "" {
		v = "latest"
	}
	return fmt.Sprintf("%s/%s@%s", q.Repository, q.Name, v)
}
