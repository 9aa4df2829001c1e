package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	http   *http.Server
	logger *zap.Logger
}

func NewServer(addr string, api *API, secret string, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.CustomRecovery(requestRecoveryWithLog(logger)))
	router.Use(requestLogger(logger))
	api.RegisterRoutes(router, secret)

	s := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		// A batch of ten links may legitimately run for hours.
		WriteTimeout: 0,
	}

	return &Server{http: s, logger: logger}
}

func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until Shutdown is called. A clean shutdown returns nil.
func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("server listening", zap.String("addr", ln.Addr().String()))
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
