package video

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/curator-agent/internal/models"
	"github.com/curator-agent/internal/source"
	"github.com/curator-agent/pkg/logger"
	"github.com/curator-agent/pkg/ratelimit"
)

// Adapter implements source.Adapter for Video genres using the YouTube Data
// API. A source reference is a channel id; the adapter lists the channel's
// most recent uploads.
type Adapter struct {
	service    *youtube.Service
	limiter    *ratelimit.MultiLimiter
	retry      source.RetryPolicy
	maxResults int64
	log        *logger.Logger
}

// Config holds YouTube adapter settings.
type Config struct {
	APIKey     string
	MaxResults int64
}

// New creates the YouTube adapter.
func New(ctx context.Context, cfg Config, limiter *ratelimit.MultiLimiter, retry source.RetryPolicy, log *logger.Logger) (*Adapter, error) {
	service, err := youtube.NewService(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create youtube service: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 25
	}

	return &Adapter{
		service:    service,
		limiter:    limiter,
		retry:      retry,
		maxResults: maxResults,
		log:        log.WithComponent("source-video"),
	}, nil
}

// Kind returns "youtube"
func (a *Adapter) Kind() string {
	return "youtube"
}

// Fetch lists recent uploads for one channel id.
func (a *Adapter) Fetch(ctx context.Context, sourceRef string) ([]models.ContentItem, error) {
	if err := a.limiter.Wait(ctx, ratelimit.LimiterYouTube); err != nil {
		return nil, err
	}

	a.log.Debug().Str("channel_id", sourceRef).Msg("Fetching channel uploads")

	var response *youtube.SearchListResponse
	err := a.retry.Do(ctx, func() error {
		var callErr error
		response, callErr = a.service.Search.List([]string{"snippet"}).
			ChannelId(sourceRef).
			Type("video").
			Order("date").
			MaxResults(a.maxResults).
			Context(ctx).
			Do()
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads for channel %s: %w", sourceRef, err)
	}

	items := make([]models.ContentItem, 0, len(response.Items))
	for _, result := range response.Items {
		if result.Id == nil || result.Id.VideoId == "" || result.Snippet == nil {
			continue
		}

		item := models.ContentItem{
			ExternalID:   result.Id.VideoId,
			Title:        result.Snippet.Title,
			BodyExcerpt:  result.Snippet.Description,
			URL:          "https://www.youtube.com/watch?v=" + result.Id.VideoId,
			SourceRef:    sourceRef,
			Channel:      result.Snippet.ChannelTitle,
			ImagePresent: result.Snippet.Thumbnails != nil && result.Snippet.Thumbnails.Default != nil,
		}
		if published, parseErr := time.Parse(time.RFC3339, result.Snippet.PublishedAt); parseErr == nil {
			item.PublishedAt = &published
		}
		items = append(items, item)
	}

	a.log.Info().
		Int("count", len(items)).
		Str("channel_id", sourceRef).
		Msg("Fetched channel uploads")

	return items, nil
}

// HealthCheck verifies the channel exists and the API key works.
func (a *Adapter) HealthCheck(ctx context.Context, sourceRef string) error {
	response, err := a.service.Channels.List([]string{"id"}).
		Id(sourceRef).
		Context(ctx).
		Do()
	if err != nil {
		return err
	}
	if len(response.Items) == 0 {
		return fmt.Errorf("channel %s not found", sourceRef)
	}
	return nil
}

// Ensure Adapter implements source.Adapter
var _ source.Adapter = (*Adapter)(nil)
