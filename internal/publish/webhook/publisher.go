// Package webhook publishes candidates by POSTing them to a configured HTTP
// endpoint, authenticated via OAuth2 client credentials when configured.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/curator-agent/internal/models"
	"github.com/curator-agent/internal/publish"
	"github.com/curator-agent/pkg/logger"
	"github.com/curator-agent/pkg/ratelimit"
)

// Config holds webhook publisher settings.
type Config struct {
	Endpoint     string
	TokenURL     string // optional; empty means unauthenticated
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// Publisher implements publish.Publisher against an HTTP endpoint.
type Publisher struct {
	endpoint   string
	httpClient *http.Client
	limiter    *ratelimit.MultiLimiter
	log        *logger.Logger
}

// New creates the webhook publisher.
func New(cfg Config, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Publisher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var httpClient *http.Client
	if cfg.TokenURL != "" {
		creds := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		httpClient = creds.Client(context.Background())
		httpClient.Timeout = timeout
	} else {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Publisher{
		endpoint:   cfg.Endpoint,
		httpClient: httpClient,
		limiter:    limiter,
		log:        log.WithComponent("publisher"),
	}
}

// payload is the wire format the collaborator accepts.
type payload struct {
	GenreID      string     `json:"genre_id"`
	ExternalID   string     `json:"external_id,omitempty"`
	Title        string     `json:"title"`
	BodyExcerpt  string     `json:"body_excerpt,omitempty"`
	URL          string     `json:"url,omitempty"`
	Channel      string     `json:"channel,omitempty"`
	SourceRef    string     `json:"source_ref"`
	ImagePresent bool       `json:"image_present"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	QualityScore float64    `json:"quality_score"`
}

type publishResponse struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

// Publish implements publish.Publisher. A 429 response, or a 409 carrying
// code "daily_limit_reached", maps to publish.ErrDailyLimitReached.
func (p *Publisher) Publish(ctx context.Context, genreID string, candidate models.Candidate) (string, error) {
	if err := p.limiter.Wait(ctx, ratelimit.LimiterPublish); err != nil {
		return "", err
	}

	body, err := json.Marshal(payload{
		GenreID:      genreID,
		ExternalID:   candidate.Item.ExternalID,
		Title:        candidate.Item.Title,
		BodyExcerpt:  candidate.Item.BodyExcerpt,
		URL:          candidate.Item.URL,
		Channel:      candidate.Item.Channel,
		SourceRef:    candidate.Item.SourceRef,
		ImagePresent: candidate.Item.ImagePresent,
		PublishedAt:  candidate.Item.PublishedAt,
		QualityScore: candidate.QualityScore,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal publish payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("publish request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read publish response: %w", err)
	}

	var parsed publishResponse
	_ = json.Unmarshal(respBody, &parsed)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", publish.ErrDailyLimitReached
	case resp.StatusCode == http.StatusConflict && parsed.Code == "daily_limit_reached":
		return "", publish.ErrDailyLimitReached
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		p.log.Info().
			Str("genre", genreID).
			Str("published_id", parsed.ID).
			Str("title", candidate.Item.Title).
			Msg("Candidate published")
		return parsed.ID, nil
	default:
		return "", fmt.Errorf("publish endpoint returned %d: %s", resp.StatusCode, string(respBody))
	}
}

// Ensure Publisher implements publish.Publisher
var _ publish.Publisher = (*Publisher)(nil)
