package service

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/vocdoni/semaphore-aa-vote/api"
	"github.com/vocdoni/semaphore-aa-vote/log"
)

// apiShutdownTimeout bounds the wait for running requests on Stop.
const apiShutdownTimeout = 10 * time.Second

// APIService represents a service that manages the HTTP API server.
type APIService struct {
	conf api.APIConfig
	api  *api.API
	mu   sync.Mutex
}

// NewAPI creates a new APIService instance.
func NewAPI(conf *api.APIConfig) *APIService {
	return &APIService{conf: *conf}
}

// Start begins the API server. It returns an error if the service
// is already running or if it fails to start.
func (as *APIService) Start(ctx context.Context) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.api != nil {
		return fmt.Errorf("service already running")
	}
	a, err := api.New(&as.conf)
	if err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	as.api = a
	go func() {
		<-ctx.Done()
		as.Stop()
	}()
	return nil
}

// Stop halts the API server.
func (as *APIService) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.api == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), apiShutdownTimeout)
	defer cancel()
	if err := as.api.Shutdown(ctx); err != nil {
		log.Warnw("API server shutdown", "error", err)
	}
	as.api = nil
}

// HostPort returns the host and port the API server listens on. The port is
// the one chosen by the system when the configured one is 0.
func (as *APIService) HostPort() (string, int) {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.api == nil {
		return as.conf.Host, as.conf.Port
	}
	host, port, err := net.SplitHostPort(as.api.Addr().String())
	if err != nil {
		return as.conf.Host, as.conf.Port
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return as.conf.Host, as.conf.Port
	}
	return host, p
}
