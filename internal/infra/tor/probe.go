package tor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/net/proxy"

	"github.com/magicaleks/onionfetch/internal/impls"
)

// Probe asks an IP echo service, through the SOCKS proxy, which exit
// address the world currently sees.
type Probe struct {
	url    string
	client *retryablehttp.Client
}

type probeResponse struct {
	IsTor bool   `json:"IsTor"`
	IP    string `json:"IP"`
}

func NewProbe(socksPort int, url string, logger *zap.Logger) (*Probe, error) {
	dialer, err := proxy.SOCKS5("tcp", fmt.Sprintf("127.0.0.1:%d", socksPort), nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("socks dialer: %w", err)
	}
	ctxDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("socks dialer does not support contexts")
	}

	transport := &http.Transport{
		DialContext:         ctxDialer.DialContext,
		TLSHandshakeTimeout: 15 * time.Second,
	}
	return newProbe(url, &http.Client{Transport: transport, Timeout: 30 * time.Second}, logger), nil
}

func newProbe(url string, httpClient *http.Client, logger *zap.Logger) *Probe {
	client := retryablehttp.NewClient()
	client.HTTPClient = httpClient
	client.RetryMax = 2
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = leveledLogger{logger.Sugar()}

	return &Probe{url: url, client: client}
}

func (p *Probe) ExitIP(ctx context.Context) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return "", err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("probe exit ip: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("probe exit ip: unexpected status %d", resp.StatusCode)
	}

	var body probeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("probe exit ip: decode: %w", err)
	}
	if !body.IsTor {
		return body.IP, fmt.Errorf("probe exit ip: %s is not a tor exit", body.IP)
	}
	return body.IP, nil
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }

var _ impls.ExitProbe = (*Probe)(nil)
