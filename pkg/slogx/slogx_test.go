package slogx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestNewWritesJSON(t *testing.T) {
	// Not parallel, New swaps slog's default logger
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := New(Config{Service: "curb", Version: "test", Level: "info", Format: "json", Output: &buf})
	logger.Info("hello", "k", "v")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "hello", line["msg"])
	require.Equal(t, "curb", line["service"])
	require.Equal(t, "v", line["k"])
}

func TestFromContext(t *testing.T) {
	t.Parallel()

	fallback := Discard()
	require.Same(t, fallback, FromContext(context.Background(), fallback))

	stored := Discard()
	ctx := WithContext(context.Background(), stored)
	require.Same(t, stored, FromContext(ctx, fallback))
}

func TestTransportStampsRequestID(t *testing.T) {
	t.Parallel()

	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(RequestIDHeader)
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client := &http.Client{Transport: NewTransport(nil, logger)}

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer c2VjcmV0")

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	_, err = ulid.ParseStrict(seen)
	require.NoError(t, err, "request id should be a ulid")
	require.Empty(t, req.Header.Get(RequestIDHeader), "caller's request must not be mutated")

	out := buf.String()
	require.Contains(t, out, "http_request")
	require.Contains(t, out, "status=418")
	require.Contains(t, out, "req_id="+seen)
	require.False(t, strings.Contains(out, "c2VjcmV0"), "credentials must never be logged")
}

func TestTransportKeepsExistingRequestID(t *testing.T) {
	t.Parallel()

	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(RequestIDHeader)
	}))
	defer srv.Close()

	client := &http.Client{Transport: NewTransport(nil, Discard())}
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "caller-chosen")

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, "caller-chosen", seen)
}
