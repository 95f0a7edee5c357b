package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/aminnairi/cristaline/core/es"
	"github.com/aminnairi/cristaline/examples/todo"
)

const defaultServeAddr = "127.0.0.1:8080"

// serve exposes the todo list over HTTP until ctx is done. Snapshots are
// taken by the compactor in the background.
func (a *app) serve(ctx context.Context) error {
	addr := a.cfg.MetricsAddr
	if addr == "" {
		addr = defaultServeAddr
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("http server starting", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		a.compactor.Run(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /todos", a.handleList)
	mux.HandleFunc("POST /todos", a.handleAdd)
	mux.HandleFunc("POST /todos/{id}/done", a.handleDone)
	mux.HandleFunc("DELETE /todos/{id}", a.handleRemove)
	mux.HandleFunc("POST /snapshot", a.handleSnapshot)
	return mux
}

func (a *app) handleList(w http.ResponseWriter, r *http.Request) {
	s, err := a.engine.State()
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *app) handleAdd(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	id, err := todo.Add(r.Context(), a.engine, body.Title)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (a *app) handleDone(w http.ResponseWriter, r *http.Request) {
	if err := todo.Complete(r.Context(), a.engine, r.PathValue("id")); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *app) handleRemove(w http.ResponseWriter, r *http.Request) {
	if err := todo.Remove(r.Context(), a.engine, r.PathValue("id")); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *app) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := a.compactor.Trigger(r.Context()); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *app) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, todo.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, todo.ErrEmptyTitle):
		status = http.StatusBadRequest
	case errors.Is(err, todo.ErrAlreadyDone), errors.Is(err, todo.ErrTitleUnchanged):
		status = http.StatusConflict
	case errors.Is(err, es.ErrCorrupted), errors.Is(err, es.ErrNotInitialized):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		a.log.Error("request failed", slog.Any("error", err))
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
