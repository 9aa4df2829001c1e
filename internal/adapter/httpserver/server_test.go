package httpserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/magicaleks/onionfetch/internal/domain"
)

type fakeBatches struct {
	result   domain.BatchResult
	progress domain.Progress
	got      []string
	called   bool
	panic    bool
}

func (f *fakeBatches) Download(_ context.Context, links []string) domain.BatchResult {
	if f.panic {
		panic("boom")
	}
	f.called = true
	f.got = links
	return f.result
}

func (f *fakeBatches) Progress() domain.Progress { return f.progress }

func newTestHandler(batches *fakeBatches, secret string) http.Handler {
	api := NewAPI(batches, zap.NewNop())
	return NewServer("127.0.0.1:0", api, secret, zap.NewNop()).Handler()
}

func post(t *testing.T, h http.Handler, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/download/tiktok", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestDownloadReturnsArchive(t *testing.T) {
	batches := &fakeBatches{result: domain.BatchResult{
		BatchID:   "b-1",
		Kind:      domain.ResultArchive,
		Summary:   domain.MsgDownloaded(2),
		Succeeded: 2,
		Archive:   []byte("PK\x03\x04"),
	}}

	rec := post(t, newTestHandler(batches, ""), `["https://a","https://b"]`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="videos.zip"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "b-1", rec.Header().Get("X-Batch-ID"))
	assert.Equal(t, "PK\x03\x04", rec.Body.String())
	assert.Equal(t, []string{"https://a", "https://b"}, batches.got)
}

func TestDownloadStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		result domain.BatchResult
		code   int
	}{
		{"rejected", domain.BatchResult{Kind: domain.ResultRejected, Summary: domain.MsgNoLinks}, http.StatusBadRequest},
		{"tor start", domain.BatchResult{Kind: domain.ResultFailed, Summary: domain.MsgTorStart}, http.StatusBadRequest},
		{"tor rotate", domain.BatchResult{Kind: domain.ResultFailed, Summary: domain.MsgTorRotate}, http.StatusBadRequest},
		{"nothing downloaded", domain.BatchResult{Kind: domain.ResultEmpty, Summary: domain.MsgNoVideos}, http.StatusBadRequest},
		{"unexpected", domain.BatchResult{Kind: domain.ResultFailed, Summary: domain.MsgUnexpected}, http.StatusBadRequest},
		{"busy", domain.BatchResult{Kind: domain.ResultBusy, Summary: domain.MsgBusy}, http.StatusConflict},
		{"pack failed", domain.BatchResult{Kind: domain.ResultPackFailed, Summary: domain.MsgArchiveFailed}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, newTestHandler(&fakeBatches{result: tt.result}, ""), `["https://a"]`, nil)

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.result.Summary, rec.Body.String())
			assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
		})
	}
}

func TestDownloadEmptyArrayReachesService(t *testing.T) {
	batches := &fakeBatches{result: domain.BatchResult{Kind: domain.ResultRejected, Summary: domain.MsgNoLinks}}

	rec := post(t, newTestHandler(batches, ""), `[]`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No links provided.", rec.Body.String())
	assert.True(t, batches.called)
}

func TestDownloadMalformedBody(t *testing.T) {
	batches := &fakeBatches{}

	rec := post(t, newTestHandler(batches, ""), `{"links":"nope"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, batches.called)
}

func TestDownloadRequiresSecretWhenConfigured(t *testing.T) {
	batches := &fakeBatches{result: domain.BatchResult{Kind: domain.ResultEmpty, Summary: domain.MsgNoVideos}}
	h := newTestHandler(batches, "s3cret")

	rec := post(t, h, `["https://a"]`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, batches.called)

	rec = post(t, h, `["https://a"]`, map[string]string{"X-Fetch-Secret": "s3cret"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, batches.called)
}

func TestPingSkipsAuth(t *testing.T) {
	h := newTestHandler(&fakeBatches{}, "s3cret")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusReportsProgress(t *testing.T) {
	batches := &fakeBatches{progress: domain.Progress{
		BatchID: "b-2",
		State:   domain.StateFetching,
		Current: 1,
		Total:   4,
	}}
	h := newTestHandler(batches, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/download/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "b-2", body["batch_id"])
	assert.Equal(t, "fetching", body["state"])
	assert.InDelta(t, 25.0, body["percentage"], 0.001)
	assert.Equal(t, false, body["finished"])
}

func TestRecoveryRendersUnexpected(t *testing.T) {
	rec := post(t, newTestHandler(&fakeBatches{panic: true}, ""), `["https://a"]`, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, domain.MsgUnexpected, rec.Body.String())
}

func TestServeAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(ln.Addr().String(), NewAPI(&fakeBatches{}, zap.NewNop()), "", zap.NewNop())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/ping")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, <-errCh)
}
