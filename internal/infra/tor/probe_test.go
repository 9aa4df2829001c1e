package tor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestProbeExitIP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"IsTor":true,"IP":"185.220.101.7"}`))
	}))
	defer srv.Close()

	p := newProbe(srv.URL, srv.Client(), zap.NewNop())

	ip, err := p.ExitIP(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "185.220.101.7", ip)
}

func TestProbeNotTor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"IsTor":false,"IP":"203.0.113.9"}`))
	}))
	defer srv.Close()

	ip, err := newProbe(srv.URL, srv.Client(), zap.NewNop()).ExitIP(context.Background())
	assert.Error(t, err)
	assert.Equal(t, "203.0.113.9", ip)
}

func TestProbeBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newProbe(srv.URL, srv.Client(), zap.NewNop()).ExitIP(context.Background())
	assert.Error(t, err)
}

func TestNewProbeBuildsSocksTransport(t *testing.T) {
	p, err := NewProbe(9050, "https://check.torproject.org/api/ip", zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, p.client.HTTPClient.Transport)
}
