package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/curator-agent/internal/models"
	"github.com/curator-agent/internal/publish"
	"github.com/curator-agent/pkg/logger"
	"github.com/curator-agent/pkg/ratelimit"
)

func testPublisher(endpoint string) *Publisher {
	limiter := ratelimit.NewMultiLimiter()
	limiter.AddLimiter(ratelimit.LimiterPublish, 1000, 1000)
	log := logger.New(logger.Config{Level: "error", Format: "json"})
	return New(Config{Endpoint: endpoint}, limiter, log)
}

func candidate() models.Candidate {
	return models.Candidate{
		Item:         models.ContentItem{Title: "AI breakthrough", SourceRef: "feed"},
		QualityScore: 0.9,
	}
}

func TestPublishSuccess(t *testing.T) {
	var got payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "pub-42"})
	}))
	defer server.Close()

	id, err := testPublisher(server.URL).Publish(context.Background(), "tech", candidate())
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if id != "pub-42" {
		t.Errorf("published id = %q, want pub-42", id)
	}
	if got.GenreID != "tech" || got.Title != "AI breakthrough" || got.QualityScore != 0.9 {
		t.Errorf("unexpected payload: %+v", got)
	}
}

func TestPublishTooManyRequestsMapsToLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := testPublisher(server.URL).Publish(context.Background(), "tech", candidate())
	if !errors.Is(err, publish.ErrDailyLimitReached) {
		t.Errorf("err = %v, want ErrDailyLimitReached", err)
	}
}

func TestPublishConflictWithLimitCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"code": "daily_limit_reached"})
	}))
	defer server.Close()

	_, err := testPublisher(server.URL).Publish(context.Background(), "tech", candidate())
	if !errors.Is(err, publish.ErrDailyLimitReached) {
		t.Errorf("err = %v, want ErrDailyLimitReached", err)
	}
}

func TestPublishServerErrorIsOpaque(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := testPublisher(server.URL).Publish(context.Background(), "tech", candidate())
	if err == nil {
		t.Fatal("expected error on 500")
	}
	if errors.Is(err, publish.ErrDailyLimitReached) {
		t.Error("500 must not map to the daily-limit sentinel")
	}
}
