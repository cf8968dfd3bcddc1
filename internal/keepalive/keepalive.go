package keepalive

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultInterval is the time between pings.
	DefaultInterval = 4 * time.Minute
	// DefaultDelay is the wait before the first ping.
	DefaultDelay = 5 * time.Second

	requestTimeout = 10 * time.Second
)

// Worker periodically requests a health URL so that hosts which idle
// unvisited services keep this one running.
type Worker struct {
	log      *slog.Logger
	url      string
	interval time.Duration
	delay    time.Duration
	client   *http.Client
}

// NewWorker creates a keep-alive worker for url.
func NewWorker(log *slog.Logger, url string, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Worker{
		log:      log,
		url:      url,
		interval: interval,
		delay:    DefaultDelay,
		client:   &http.Client{Timeout: requestTimeout},
	}
}

// Run pings until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("starting keep-alive worker", "url", w.url, "interval", w.interval)

	select {
	case <-ctx.Done():
		return nil
	case <-time.After(w.delay):
	}
	w.ping(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.ping(ctx)
		}
	}
}

func (w *Worker) ping(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.url, nil)
	if err != nil {
		w.log.Error("keep-alive request", "err", err)
		return
	}
	resp, err := w.client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Warn("keep-alive ping failed", "err", err)
		}
		return
	}
	resp.Body.Close()
	w.log.Debug("keep-alive ping", "status", resp.StatusCode)
}
