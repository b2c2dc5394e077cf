package jiraslackpm

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kren/jiraslackpm/httpjson"
)

// Service exposes the Loader over HTTP so that a scheduler (Cloud Scheduler,
// cron, a person with curl) can trigger loads.
type Service struct {
	Log    *slog.Logger
	Loader *Loader
	// Notify, if set, is called after every load that produced a summary.
	// Its failure is logged and does not change the response.
	Notify func(ctx context.Context, sum *Summary) error

	router *chi.Mux
	// runMu serializes loads. Two concurrent runs would write the same
	// snapshot twice.
	runMu sync.Mutex
}

func (s *Service) Init() {
	s.router = chi.NewRouter()
	s.router.Post("/load", httpjson.Handler(s.load).ServeHTTP)
	s.router.Get("/healthz", httpjson.Handler(s.healthz).ServeHTTP)
}

// RunOnce performs one load and hands the summary to Notify.
func (s *Service) RunOnce(ctx context.Context) (*Summary, error) {
	sum, err := s.Loader.Run(ctx)
	if err != nil {
		s.Log.Error("load", "error", err)
	}
	if sum != nil && s.Notify != nil {
		if nerr := s.Notify(ctx, sum); nerr != nil {
			s.Log.Error("notify", "error", nerr)
		}
	}
	return sum, err
}

func (s *Service) load(w http.ResponseWriter, r *http.Request) *httpjson.Response {
	if !s.runMu.TryLock() {
		return httpjson.Errorf(http.StatusConflict, "a load is already running")
	}
	defer s.runMu.Unlock()

	// A client that disconnects mid-load must not abort the snapshot we
	// already started writing.
	sum, err := s.RunOnce(context.WithoutCancel(r.Context()))
	if err != nil {
		return httpjson.Error(http.StatusInternalServerError, err, httpjson.M{"summary": sum})
	}
	return &httpjson.Response{
		Status: http.StatusOK,
		Body:   sum,
	}
}

func (s *Service) healthz(w http.ResponseWriter, r *http.Request) *httpjson.Response {
	return &httpjson.Response{
		Status: http.StatusOK,
		Body:   httpjson.M{"status": "ok"},
	}
}

// RunEvery loads immediately and then once per interval until ctx is done.
func (s *Service) RunEvery(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	s.Log.Info("scheduler started", "interval", interval)
	defer ticker.Stop()
	for {
		s.runMu.Lock()
		_, _ = s.RunOnce(ctx)
		s.runMu.Unlock()
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			continue
		}
	}
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
