package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"sync"
	"time"

	"epdcard/internal/app"
	"epdcard/internal/card"
	"epdcard/internal/config"
	appLog "epdcard/internal/log"
	"epdcard/internal/power"
)

const (
	batteryCacheTTL = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Poller is the part of the runner the server reports on and drives.
type Poller interface {
	Snapshot() app.Snapshot
	Cycle(ctx context.Context) app.Result
}

// Rasterizer draws a plan to an image; see render.Face.
type Rasterizer interface {
	Draw(plan card.RenderPlan) *image.NRGBA
}

// Server exposes the poller's state over HTTP.
type Server struct {
	cfg     *config.Config
	poller  Poller
	raster  Rasterizer
	battery power.Reader
	mux     *http.ServeMux

	// In-memory cache for battery status so that status polling does not
	// hit I2C on every request.
	batteryMu    sync.RWMutex
	batteryCache *batteryCache
}

// NewServer constructs a new Server. battery may be nil.
func NewServer(cfg *config.Config, poller Poller, raster Rasterizer, battery power.Reader) *Server {
	if battery == nil {
		battery = power.Unavailable()
	}
	s := &Server{
		cfg:     cfg,
		poller:  poller,
		raster:  raster,
		battery: battery,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured. Empty
// username or password disables it.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="epdcard", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve listens on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/battery", s.handleBattery)
	s.mux.HandleFunc("/api/refresh", s.handleRefresh)
	s.mux.HandleFunc("/preview.png", s.handlePreview)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// statusResponse is the JSON response shape for /api/status.
type statusResponse struct {
	app.Snapshot
	Source  string           `json:"source"`
	Driver  string           `json:"driver"`
	Battery *batteryResponse `json:"battery,omitempty"`
}

// batteryCache holds the last known battery status.
type batteryCache struct {
	status    power.Status
	updatedAt time.Time
}

// batteryResponse is the JSON response shape for /api/battery.
type batteryResponse struct {
	Percent   int `json:"percent"`
	VoltageMv int `json:"voltage_mv"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Snapshot: s.poller.Snapshot(),
		Source:   s.cfg.Source.Kind,
		Driver:   s.cfg.Display.Driver,
	}
	if st, err := s.readBattery(r.Context()); err == nil {
		resp.Battery = &batteryResponse{Percent: st.Percent, VoltageMv: st.VoltageMv}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleBattery exposes the current battery status.
func (s *Server) handleBattery(w http.ResponseWriter, r *http.Request) {
	st, err := s.readBattery(r.Context())
	if errors.Is(err, power.ErrUnavailable) {
		writeError(w, http.StatusNotFound, "battery gauge not available")
		return
	}
	if err != nil {
		appLog.Error("battery read failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read battery")
		return
	}
	writeJSON(w, http.StatusOK, batteryResponse{Percent: st.Percent, VoltageMv: st.VoltageMv})
}

func (s *Server) readBattery(ctx context.Context) (power.Status, error) {
	now := time.Now()

	s.batteryMu.RLock()
	bc := s.batteryCache
	s.batteryMu.RUnlock()
	if bc != nil && now.Sub(bc.updatedAt) < batteryCacheTTL {
		return bc.status, nil
	}

	st, err := s.battery.Read(ctx)
	if err != nil {
		return power.Status{}, err
	}

	s.batteryMu.Lock()
	s.batteryCache = &batteryCache{status: st, updatedAt: now}
	s.batteryMu.Unlock()
	return st, nil
}

// handleRefresh runs one poll cycle right away. POST only. The cycle
// outlives a client disconnect so a panel refresh is never cut short.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	res := s.poller.Cycle(context.WithoutCancel(r.Context()))
	appLog.Info("manual refresh", "cycle", res.ID, "outcome", res.Outcome)
	writeJSON(w, http.StatusOK, res)
}

// handlePreview rasterizes the last painted plan as PNG.
func (s *Server) handlePreview(w http.ResponseWriter, _ *http.Request) {
	snap := s.poller.Snapshot()
	if snap.LastPlan == nil || s.raster == nil {
		writeError(w, http.StatusNotFound, "nothing rendered yet")
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, s.raster.Draw(*snap.LastPlan)); err != nil {
		appLog.Error("preview encode failed", err)
		writeError(w, http.StatusInternalServerError, "failed to encode preview")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
