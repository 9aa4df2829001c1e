// Package download runs one batch of links through the anonymizing circuit:
// validate, start the daemon, rotate, fetch each link with a rotation after
// it, stop the daemon and package whatever was produced.
package download

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/magicaleks/onionfetch/internal/domain"
	"github.com/magicaleks/onionfetch/internal/impls"
)

type Deps struct {
	Daemon   impls.CircuitProcess
	Rotator  impls.CircuitRotator
	Cookies  impls.CookieStore
	Fetcher  impls.MediaFetcher
	Packager impls.ResultPackager

	// Probe is optional; when set the exit address is logged after each rotation.
	Probe impls.ExitProbe
}

type Options struct {
	OutputDir string
	Proxy     string
	MaxLinks  int
}

// Service owns the daemon lifecycle and the output directory for the
// duration of a batch. Only one batch runs at a time.
type Service struct {
	deps   Deps
	opts   Options
	logger *zap.Logger

	batch sync.Mutex

	mu       sync.Mutex
	progress domain.Progress
}

func NewService(deps Deps, opts Options, logger *zap.Logger) *Service {
	if opts.MaxLinks <= 0 {
		opts.MaxLinks = domain.DefaultMaxLinks
	}
	return &Service{
		deps:     deps,
		opts:     opts,
		logger:   logger,
		progress: domain.Progress{State: domain.StateIdle},
	}
}

// Download runs one batch to completion. It never panics and never returns
// an error: every outcome is expressed in the BatchResult.
func (s *Service) Download(ctx context.Context, links []string) (result domain.BatchResult) {
	if !s.batch.TryLock() {
		s.logger.Warn("batch rejected", zap.Error(domain.ErrBusy))
		return domain.BatchResult{Kind: domain.ResultBusy, Summary: domain.MsgBusy}
	}
	defer s.batch.Unlock()

	batchID := uuid.NewString()
	log := s.logger.With(zap.String("batch_id", batchID))
	s.begin(batchID, len(links))

	defer func() {
		if r := recover(); r != nil {
			log.Error("batch panicked", zap.Any("panic", r), zap.Stack("stack"))
			result = domain.BatchResult{Kind: domain.ResultFailed, Summary: domain.MsgUnexpected}
		}
		result.BatchID = batchID
		s.finish(result)
		log.Info("batch finished", zap.String("summary", result.Summary), zap.Int("succeeded", result.Succeeded))
	}()

	return s.run(ctx, links, log)
}

// Progress returns a snapshot of the current or last batch.
func (s *Service) Progress() domain.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress.Clone()
}

func (s *Service) run(ctx context.Context, links []string, log *zap.Logger) domain.BatchResult {
	s.setState(domain.StateValidating, "")
	req := domain.BatchRequest{Links: links}
	if err := req.Validate(s.opts.MaxLinks); err != nil {
		var verr domain.ErrValidation
		if errors.As(err, &verr) {
			log.Warn("batch rejected", zap.String("reason", verr.Reason))
			return domain.BatchResult{Kind: domain.ResultRejected, Summary: verr.Reason}
		}
		return domain.BatchResult{Kind: domain.ResultRejected, Summary: err.Error()}
	}

	log.Info("batch accepted", zap.Int("links", len(req.Links)))
	s.accept(req.Links)

	s.setState(domain.StateCircuitStarting, "Starting TOR")
	if err := s.deps.Daemon.Start(ctx); err != nil {
		log.Error("could not start tor", zap.Error(err))
		return domain.BatchResult{Kind: domain.ResultFailed, Summary: domain.MsgTorStart}
	}
	// Covers abort and panic paths; the normal path stops before packaging.
	stopped := false
	defer func() {
		if !stopped {
			s.stopDaemon(log)
		}
	}()

	s.setState(domain.StateRotating, "Rotating circuit")
	if err := s.deps.Rotator.Rotate(ctx); err != nil {
		log.Error("could not rotate circuit", zap.Error(err))
		return domain.BatchResult{Kind: domain.ResultFailed, Summary: domain.MsgTorRotate}
	}
	s.probeExit(ctx, log)

	// A missing cookie surfaces as per-link fetch failures below.
	if err := s.deps.Cookies.Generate(ctx); err != nil {
		log.Warn("cookie generation failed, continuing with existing cookies", zap.Error(err))
	}

	succeeded := 0
	for i, link := range req.Links {
		s.itemStarted(i)
		outcome := s.fetchOne(ctx, link, log)
		if outcome.Succeeded {
			succeeded++
		}
		s.itemFinished(i, outcome.Succeeded)

		s.setState(domain.StateRotating, "Rotating circuit")
		if err := s.deps.Rotator.Rotate(ctx); err != nil {
			failures := s.rotationFailed()
			log.Warn("mid-batch rotation failed, continuing",
				zap.Int("index", i),
				zap.Int("rotation_failures", failures),
				zap.Error(err))
			continue
		}
		s.probeExit(ctx, log)
	}

	s.stopDaemon(log)
	stopped = true

	if succeeded == 0 {
		return domain.BatchResult{Kind: domain.ResultEmpty, Summary: domain.MsgNoVideos}
	}

	s.setState(domain.StatePackaging, "Packaging")
	archive, err := s.deps.Packager.Pack(s.opts.OutputDir)
	if err != nil {
		log.Error("packaging failed", zap.Error(err))
		return domain.BatchResult{Kind: domain.ResultPackFailed, Summary: domain.MsgArchiveFailed, Succeeded: succeeded}
	}

	return domain.BatchResult{
		Kind:      domain.ResultArchive,
		Summary:   domain.MsgDownloaded(succeeded),
		Succeeded: succeeded,
		Archive:   archive,
	}
}

func (s *Service) fetchOne(ctx context.Context, link string, log *zap.Logger) domain.FetchOutcome {
	outcome := domain.FetchOutcome{Link: link}

	cookie, err := s.deps.Cookies.Random()
	if err != nil {
		log.Error("no cookie for link", zap.String("link", link), zap.Error(err))
		return outcome
	}

	err = s.deps.Fetcher.Fetch(ctx, domain.FetchRequest{
		Link:       link,
		CookiePath: cookie,
		Proxy:      s.opts.Proxy,
	})
	if err != nil {
		log.Warn("link failed", zap.String("link", link), zap.Error(err))
		return outcome
	}

	log.Info("link downloaded", zap.String("link", link))
	outcome.Succeeded = true
	return outcome
}

func (s *Service) stopDaemon(log *zap.Logger) {
	if err := s.deps.Daemon.Stop(); err != nil {
		log.Warn("tor stop failed", zap.Error(err))
	}
}

func (s *Service) probeExit(ctx context.Context, log *zap.Logger) {
	if s.deps.Probe == nil {
		return
	}
	ip, err := s.deps.Probe.ExitIP(ctx)
	if err != nil {
		log.Warn("exit probe failed", zap.Error(err))
		return
	}
	log.Info("exit address", zap.String("ip", ip))
}

// begin publishes a fresh record before validation; per-item entries are
// only added once the batch is accepted.
func (s *Service) begin(batchID string, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = domain.Progress{
		BatchID:   batchID,
		State:     domain.StateIdle,
		Total:     total,
		StartedAt: time.Now(),
	}
}

func (s *Service) accept(links []string) {
	items := make([]domain.ItemProgress, len(links))
	for i, l := range links {
		items[i] = domain.ItemProgress{Link: l, Status: domain.ItemPending}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress.Total = len(links)
	s.progress.Items = items
}

func (s *Service) setState(state domain.BatchState, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress.State = state
	s.progress.Message = msg
}

func (s *Service) itemStarted(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress.State = domain.StateFetching
	s.progress.Message = "Downloading..."
	s.progress.Items[i].Status = domain.ItemDownloading
}

func (s *Service) itemFinished(i int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress.Current = i + 1
	if ok {
		s.progress.Succeeded++
		s.progress.Items[i].Status = domain.ItemCompleted
		return
	}
	s.progress.Items[i].Status = domain.ItemError
}

func (s *Service) rotationFailed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress.RotationFailures++
	return s.progress.RotationFailures
}

func (s *Service) finish(result domain.BatchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress.State = domain.StateDone
	switch result.Kind {
	case domain.ResultRejected, domain.ResultFailed, domain.ResultPackFailed:
		s.progress.State = domain.StateAborted
	}
	s.progress.Message = result.Summary
	s.progress.FinishedAt = time.Now()
}
