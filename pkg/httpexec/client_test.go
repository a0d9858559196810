package httpexec

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callsched/core/pkg/logger"
	"github.com/callsched/core/pkg/models"
)

func TestClient_DoReturnsNon2xxAsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"DOWN"}`))
	}))
	defer srv.Close()

	c := New(Config{}, logger.Nop())
	resp, err := c.Do(context.Background(), &models.HTTPRequest{Method: "GET", URL: srv.URL})

	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.JSONEq(t, `{"status":"DOWN"}`, string(resp.Body))
	assert.True(t, resp.Elapsed > 0)
}

func TestClient_DoSendsMethodHeadersAndBody(t *testing.T) {
	var gotMethod, gotBody, gotHeader, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Job-Key")
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	body := `{"a":1}`
	c := New(Config{}, logger.Nop())
	resp, err := c.Do(context.Background(), &models.HTTPRequest{
		Method:  "post",
		URL:     srv.URL,
		Headers: map[string]string{"X-Job-Key": "ORDER_SYNC"},
		Body:    &body,
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "ORDER_SYNC", gotHeader)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, body, gotBody)
}

func TestClient_TransportErrorIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	c := New(Config{}, logger.Nop())
	_, err := c.Do(context.Background(), &models.HTTPRequest{Method: "GET", URL: addr})
	assert.Error(t, err)
}

func TestClient_TimeoutIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(Config{Timeout: 20 * time.Millisecond}, logger.Nop())
	_, err := c.Do(context.Background(), &models.HTTPRequest{Method: "GET", URL: srv.URL})
	assert.Error(t, err)
}

func TestClient_BreakerOpensAfterConsecutiveTransportFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	c := New(Config{BreakerEnabled: true, BreakerMaxFailures: 2, BreakerOpenTimeout: time.Minute}, logger.Nop())
	req := &models.HTTPRequest{Method: "GET", URL: addr}

	for i := 0; i < 2; i++ {
		_, err := c.Do(context.Background(), req)
		require.Error(t, err)
	}
	_, err := c.Do(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker")
}

func TestClient_BreakerIgnoresHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{BreakerEnabled: true, BreakerMaxFailures: 1, BreakerOpenTimeout: time.Minute}, logger.Nop())
	for i := 0; i < 3; i++ {
		resp, err := c.Do(context.Background(), &models.HTTPRequest{Method: "GET", URL: srv.URL})
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	}
}
