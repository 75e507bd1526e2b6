// Package api serves backtest results over HTTP while the backtester runs
// in scheduled mode.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"swing-backtest/internal/backtest"
	"swing-backtest/internal/model"
	"swing-backtest/internal/stats"
)

// Journal reads stored runs back, usually the SQLite reader.
type Journal interface {
	RunTrades(ctx context.Context, runID, strategy string) ([]model.Trade, error)
	RunSummary(ctx context.Context, runID, strategy string) ([]byte, error)
}

// Latest holds the most recent backtest report.
type Latest struct {
	mu  sync.RWMutex
	rep *backtest.Report
}

// Set replaces the stored report.
func (l *Latest) Set(rep *backtest.Report) {
	l.mu.Lock()
	l.rep = rep
	l.mu.Unlock()
}

// Get returns the stored report or nil.
func (l *Latest) Get() *backtest.Report {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rep
}

// Deps are the collaborators of the router. Journal, Metrics and Feed may
// be nil; a nil Health always reports ok.
type Deps struct {
	Strategies []string
	Latest     *Latest
	Health     http.Handler
	Metrics    http.Handler
	Feed       http.Handler
	Journal    Journal
	Logger     *slog.Logger
}

// NewRouter builds the HTTP routes:
//
//	GET /api/v1/health
//	GET /api/v1/strategies
//	GET /api/v1/runs/latest
//	GET /api/v1/runs/{runID}/{strategy}/summary
//	GET /api/v1/runs/{runID}/{strategy}/trades
//	GET /api/v1/ws (WebSocket run feed)
//	GET /metrics
func NewRouter(d Deps) *chi.Mux {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Health == nil {
		d.Health = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			render.JSON(w, r, map[string]string{"status": "ok"})
		})
	}
	h := &handlers{d: d}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		if d.Feed != nil {
			r.Handle("/ws", d.Feed)
		}
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Use(render.SetContentType(render.ContentTypeJSON))
			r.Get("/health", d.Health.ServeHTTP)
			r.Get("/strategies", h.strategies)
			r.Get("/runs/latest", h.latest)
			r.Get("/runs/{runID}/{strategy}/summary", h.summary)
			r.Get("/runs/{runID}/{strategy}/trades", h.trades)
		})
	})
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}
	return r
}

// Problem is an RFC 7807 error body.
type Problem struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Render implements render.Renderer.
func (p Problem) Render(_ http.ResponseWriter, r *http.Request) error {
	render.Status(r, p.Status)
	return nil
}

func problem(status int, detail string) Problem {
	return Problem{Title: http.StatusText(status), Status: status, Detail: detail}
}

// OutcomeView is the JSON shape of one strategy outcome.
type OutcomeView struct {
	ID        string          `json:"id"`
	Timeframe model.Timeframe `json:"timeframe"`
	Bars      int             `json:"bars"`
	Trades    int             `json:"trades"`
	Combined  float64         `json:"combined_capital"`
	Summary   stats.Summary   `json:"summary"`
}

// RunView is the JSON shape of a backtest.
type RunView struct {
	RunID    string        `json:"run_id"`
	Symbol   string        `json:"symbol"`
	Bars     int           `json:"bars"`
	First    string        `json:"first"`
	Last     string        `json:"last"`
	Started  time.Time     `json:"started"`
	Elapsed  string        `json:"elapsed"`
	Outcomes []OutcomeView `json:"outcomes"`
}

// NewRunView converts a report for the API.
func NewRunView(rep *backtest.Report) RunView {
	v := RunView{
		RunID:    rep.RunID,
		Symbol:   rep.Symbol,
		Bars:     rep.Bars,
		First:    rep.First.Format(time.DateOnly),
		Last:     rep.Last.Format(time.DateOnly),
		Started:  rep.Started,
		Elapsed:  rep.Elapsed.String(),
		Outcomes: make([]OutcomeView, 0, len(rep.Outcomes)),
	}
	for _, o := range rep.Outcomes {
		v.Outcomes = append(v.Outcomes, OutcomeView{
			ID:        o.ID,
			Timeframe: o.Result.Timeframe,
			Bars:      o.Result.Bars,
			Trades:    len(o.Result.Trades),
			Combined:  o.CombinedCapital(),
			Summary:   o.Stats.Summary(),
		})
	}
	return v
}

type handlers struct {
	d Deps
}

func (h *handlers) strategies(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string][]string{"strategies": h.d.Strategies})
}

func (h *handlers) latest(w http.ResponseWriter, r *http.Request) {
	var rep *backtest.Report
	if h.d.Latest != nil {
		rep = h.d.Latest.Get()
	}
	if rep == nil {
		render.Render(w, r, problem(http.StatusNotFound, "no backtest has completed yet"))
		return
	}
	render.JSON(w, r, NewRunView(rep))
}

func (h *handlers) summary(w http.ResponseWriter, r *http.Request) {
	if !h.journalEnabled(w, r) {
		return
	}
	raw, err := h.d.Journal.RunSummary(r.Context(), chi.URLParam(r, "runID"), chi.URLParam(r, "strategy"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, json.RawMessage(raw))
}

func (h *handlers) trades(w http.ResponseWriter, r *http.Request) {
	if !h.journalEnabled(w, r) {
		return
	}
	trades, err := h.d.Journal.RunTrades(r.Context(), chi.URLParam(r, "runID"), chi.URLParam(r, "strategy"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(trades) == 0 {
		render.Render(w, r, problem(http.StatusNotFound, "no trades recorded for this run"))
		return
	}
	render.JSON(w, r, map[string][]model.Trade{"trades": trades})
}

func (h *handlers) journalEnabled(w http.ResponseWriter, r *http.Request) bool {
	if h.d.Journal == nil {
		render.Render(w, r, problem(http.StatusNotImplemented, "journal is not configured"))
		return false
	}
	return true
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		render.Render(w, r, problem(http.StatusNotFound, "run not found"))
		return
	}
	h.d.Logger.Error("journal read failed",
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.Any("error", err),
	)
	render.Render(w, r, problem(http.StatusInternalServerError, ""))
}
