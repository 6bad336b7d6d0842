package rss

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/curator-agent/internal/models"
	"github.com/curator-agent/internal/source"
	"github.com/curator-agent/pkg/logger"
	"github.com/curator-agent/pkg/ratelimit"
)

// Adapter implements source.Adapter for RSS/Atom feeds, serving Article
// genres. One adapter handles any number of feed URLs.
type Adapter struct {
	parser  *gofeed.Parser
	limiter *ratelimit.MultiLimiter
	retry   source.RetryPolicy
	log     *logger.Logger
}

// New creates the RSS adapter.
func New(limiter *ratelimit.MultiLimiter, retry source.RetryPolicy, log *logger.Logger) *Adapter {
	return &Adapter{
		parser:  gofeed.NewParser(),
		limiter: limiter,
		retry:   retry,
		log:     log.WithComponent("source-rss"),
	}
}

// Kind returns "rss"
func (a *Adapter) Kind() string {
	return "rss"
}

// Fetch retrieves items from one feed URL.
func (a *Adapter) Fetch(ctx context.Context, sourceRef string) ([]models.ContentItem, error) {
	if err := a.limiter.Wait(ctx, ratelimit.LimiterRSS); err != nil {
		return nil, err
	}

	a.log.Debug().Str("url", sourceRef).Msg("Fetching RSS feed")

	var feed *gofeed.Feed
	err := a.retry.Do(ctx, func() error {
		var parseErr error
		feed, parseErr = a.parser.ParseURLWithContext(sourceRef, ctx)
		return parseErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSS feed %s: %w", sourceRef, err)
	}

	items := make([]models.ContentItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		externalID := item.GUID
		if externalID == "" {
			externalID = source.GenerateExternalID(a.Kind(), item.Link)
		}

		contentItem := models.ContentItem{
			ExternalID:   externalID,
			Title:        cleanText(item.Title),
			BodyExcerpt:  cleanText(excerpt(item)),
			URL:          item.Link,
			PublishedAt:  item.PublishedParsed,
			SourceRef:    sourceRef,
			ImagePresent: hasImage(item),
		}
		items = append(items, contentItem)
	}

	a.log.Info().
		Int("count", len(items)).
		Str("url", sourceRef).
		Msg("Fetched RSS items")

	return items, nil
}

// HealthCheck verifies the feed is accessible.
func (a *Adapter) HealthCheck(ctx context.Context, sourceRef string) error {
	_, err := a.parser.ParseURLWithContext(sourceRef, ctx)
	return err
}

func excerpt(item *gofeed.Item) string {
	if item.Description != "" {
		return item.Description
	}
	return item.Content
}

func hasImage(item *gofeed.Item) bool {
	if item.Image != nil && item.Image.URL != "" {
		return true
	}
	for _, enc := range item.Enclosures {
		if strings.HasPrefix(enc.Type, "image/") {
			return true
		}
	}
	return false
}

// cleanText removes HTML tags and extra whitespace
func cleanText(text string) string {
	text = strings.ReplaceAll(text, "<br>", " ")
	text = strings.ReplaceAll(text, "<br/>", " ")
	text = strings.ReplaceAll(text, "<br />", " ")
	text = strings.ReplaceAll(text, "</p>", " ")
	text = strings.ReplaceAll(text, "<p>", "")

	// Remove remaining HTML tags
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
		} else if r == '>' {
			inTag = false
		} else if !inTag {
			result.WriteRune(r)
		}
	}

	text = result.String()
	text = strings.Join(strings.Fields(text), " ")
	return strings.TrimSpace(text)
}

// Ensure Adapter implements source.Adapter
var _ source.Adapter = (*Adapter)(nil)
