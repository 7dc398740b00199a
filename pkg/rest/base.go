package rest

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/llm-d-incubation/gemm-perf-model/internal/logger"
	"github.com/llm-d-incubation/gemm-perf-model/pkg/config"
)

// A REST server that runs until its context is cancelled
type RESTServer interface {
	Run(ctx context.Context) error
	Handler() http.Handler
	Addr() string
}

// Base REST server
type BaseServer struct {
	router *gin.Engine
	addr   string
}

// Create a base server; env settings override the given spec, which overrides the defaults
func NewBaseServer(spec *config.ServerSpec) *BaseServer {
	host, port := DefaultRestHost, DefaultRestPort
	if spec != nil {
		if spec.Host != "" {
			host = spec.Host
		}
		if spec.Port != "" {
			port = spec.Port
		}
	}
	if h := os.Getenv(RestHostEnvName); h != "" {
		host = h
	}
	if p := os.Getenv(RestPortEnvName); p != "" {
		port = p
	}
	return &BaseServer{
		router: gin.Default(),
		addr:   net.JoinHostPort(host, port),
	}
}

func (server *BaseServer) Handler() http.Handler {
	return server.router
}

func (server *BaseServer) Addr() string {
	return server.addr
}

// start server; returns when ctx is cancelled or the listener fails
func (server *BaseServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              server.addr,
		Handler:           server.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Log.Infow("REST server listening", "addr", server.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeoutSeconds*time.Second)
	defer cancel()
	logger.Log.Infow("REST server shutting down", "addr", server.addr)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
