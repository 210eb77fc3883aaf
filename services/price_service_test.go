package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// newFeedServer fakes the simple-price endpoint with a canned body
func newFeedServer(t *testing.T, status int, body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/simple/price", r.URL.Path)
		assert.Equal(t, "ethereum", r.URL.Query().Get("ids"))
		assert.Equal(t, "inr", r.URL.Query().Get("vs_currencies"))
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func newTestPriceService(baseURL string) *PriceService {
	return &PriceService{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}
}

func TestGetRate_FromFeed(t *testing.T) {
	server := newFeedServer(t, http.StatusOK, `{"ethereum":{"inr":245000.12}}`)
	defer server.Close()

	svc := newTestPriceService(server.URL)
	rate, err := svc.GetRate(context.Background(), "ethereum", "inr")
	assert.NoError(t, err)
	assert.Equal(t, 245000.12, rate)
}

func TestGetRate_FeedErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"Upstream 500", http.StatusInternalServerError, `{}`},
		{"Rate limited", http.StatusTooManyRequests, `{}`},
		{"Missing currency", http.StatusOK, `{"ethereum":{}}`},
		{"Zero rate", http.StatusOK, `{"ethereum":{"inr":0}}`},
		{"Garbage body", http.StatusOK, `not json at all`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newFeedServer(t, tt.status, tt.body)
			defer server.Close()

			svc := newTestPriceService(server.URL)
			_, err := svc.GetRate(context.Background(), "ethereum", "inr")
			assert.ErrorIs(t, err, ErrOracleUnavailable)
		})
	}
}

func TestGetRate_UnreachableFeed(t *testing.T) {
	svc := newTestPriceService("http://127.0.0.1:1")
	_, err := svc.GetRate(context.Background(), "ethereum", "inr")
	assert.ErrorIs(t, err, ErrOracleUnavailable)
}
