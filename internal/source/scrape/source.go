package scrape

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/curator-agent/internal/models"
	"github.com/curator-agent/internal/source"
	"github.com/curator-agent/pkg/logger"
	"github.com/curator-agent/pkg/ratelimit"
)

const userAgent = "curator-agent/1.0 (+https://github.com/curator-agent)"

// Adapter implements source.Adapter for plain HTML pages, serving Article
// genres whose sources expose no feed. It extracts <article> elements (or
// heading links as a fallback) from the listing page.
type Adapter struct {
	client  *http.Client
	limiter *ratelimit.MultiLimiter
	retry   source.RetryPolicy
	log     *logger.Logger
}

// New creates the scrape adapter.
func New(limiter *ratelimit.MultiLimiter, retry source.RetryPolicy, log *logger.Logger) *Adapter {
	return &Adapter{
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: limiter,
		retry:   retry,
		log:     log.WithComponent("source-scrape"),
	}
}

// Kind returns "scrape"
func (a *Adapter) Kind() string {
	return "scrape"
}

// Fetch downloads one listing page and extracts its articles.
func (a *Adapter) Fetch(ctx context.Context, sourceRef string) ([]models.ContentItem, error) {
	if err := a.limiter.Wait(ctx, ratelimit.LimiterScrape); err != nil {
		return nil, err
	}

	a.log.Debug().Str("url", sourceRef).Msg("Scraping page")

	var doc *goquery.Document
	err := a.retry.Do(ctx, func() error {
		var fetchErr error
		doc, fetchErr = a.fetchDocument(ctx, sourceRef)
		return fetchErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scrape %s: %w", sourceRef, err)
	}

	items := extractArticles(doc, sourceRef)

	a.log.Info().
		Int("count", len(items)).
		Str("url", sourceRef).
		Msg("Scraped articles")

	return items, nil
}

// HealthCheck verifies the page is reachable.
func (a *Adapter) HealthCheck(ctx context.Context, sourceRef string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, sourceRef, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, sourceRef)
	}
	return nil
}

func (a *Adapter) fetchDocument(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return goquery.NewDocumentFromReader(resp.Body)
}

func extractArticles(doc *goquery.Document, sourceRef string) []models.ContentItem {
	var items []models.ContentItem

	doc.Find("article").Each(func(_ int, sel *goquery.Selection) {
		title := strings.TrimSpace(sel.Find("h1, h2, h3").First().Text())
		if title == "" {
			return
		}

		link, _ := sel.Find("a[href]").First().Attr("href")
		body := strings.TrimSpace(sel.Find("p").Text())
		body = strings.Join(strings.Fields(body), " ")

		items = append(items, models.ContentItem{
			ExternalID:   source.GenerateExternalID("scrape", link),
			Title:        title,
			BodyExcerpt:  body,
			URL:          link,
			SourceRef:    sourceRef,
			ImagePresent: sel.Find("img").Length() > 0,
		})
	})

	if len(items) > 0 {
		return items
	}

	// No <article> markup: fall back to heading links.
	doc.Find("h2 a[href], h3 a[href]").Each(func(_ int, sel *goquery.Selection) {
		title := strings.TrimSpace(sel.Text())
		if title == "" {
			return
		}
		link, _ := sel.Attr("href")
		items = append(items, models.ContentItem{
			ExternalID: source.GenerateExternalID("scrape", link),
			Title:      title,
			URL:        link,
			SourceRef:  sourceRef,
		})
	})

	return items
}

// Ensure Adapter implements source.Adapter
var _ source.Adapter = (*Adapter)(nil)
