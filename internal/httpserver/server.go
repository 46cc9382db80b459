package httpserver

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/playlift/playlift/internal/attribution"
	"github.com/playlift/playlift/internal/config"
	"github.com/playlift/playlift/internal/database"
	"github.com/playlift/playlift/internal/metrics"
	"go.uber.org/zap"
)

// Dependencies holds all external dependencies for the server. The
// attribution services are constructed by the caller because the poll
// scheduler shares the same store instances.
type Dependencies struct {
	DB        *database.PostgresDB
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Linker    *attribution.Linker
	Engine    *attribution.Engine
	Stats     *attribution.StatsService
	Scheduler *attribution.Scheduler
}

// Server wraps HTTP handlers over the attribution services.
type Server struct {
	linker    *attribution.Linker
	engine    *attribution.Engine
	stats     *attribution.StatsService
	scheduler *attribution.Scheduler
	db        *database.PostgresDB
	logger    *zap.Logger
	config    *config.Config
	metrics   *metrics.Metrics
}

// NewServer constructs a new http.Handler with all routes registered.
func NewServer(deps *Dependencies) http.Handler {
	s := &Server{
		linker:    deps.Linker,
		engine:    deps.Engine,
		stats:     deps.Stats,
		scheduler: deps.Scheduler,
		db:        deps.DB,
		logger:    deps.Logger,
		config:    deps.Config,
		metrics:   deps.Metrics,
	}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	if deps.Config.Metrics.Enabled {
		mux.Handle(deps.Config.Metrics.Path, metrics.Handler())
	}

	// Session linking
	mux.HandleFunc("/sessions/link", s.handleSessionLink)

	// Attribution passes
	mux.HandleFunc("/attribution/run", s.handleAttributionRun)

	// Campaign reporting
	mux.HandleFunc("/campaigns/", s.handleCampaignSubresource)

	// Click reporting
	mux.HandleFunc("/clicks/", s.handleClickSubresource)

	return mux
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]string{"status": "ok"}

	if s.db != nil {
		if err := s.db.Health(r.Context()); err != nil {
			health["status"] = "degraded"
			health["database"] = "unavailable"
		} else {
			health["database"] = "ok"
		}
		if s.metrics != nil {
			st := s.db.Stats()
			s.metrics.UpdateDBStats(int(st.IdleConns()), int(st.AcquiredConns()), int(st.TotalConns()))
		}
	}

	s.jsonResponse(w, health)
}

// ---- Session Linking ----

type linkRequest struct {
	ClickID    string `json:"click_id"`
	IdentityID string `json:"identity_id"`
}

func (s *Server) handleSessionLink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}

	session, err := s.linker.Link(r.Context(), req.ClickID, req.IdentityID)
	if err != nil {
		s.errorResponse(w, "failed to link: "+err.Error(), http.StatusBadRequest)
		return
	}

	// A fresh link is the best moment to look for matches; the trigger is
	// dropped if a pass is already pending.
	if s.scheduler != nil {
		s.scheduler.TriggerPass(attribution.TriggerLink)
	}

	s.jsonResponse(w, session)
}

// ---- Attribution Passes ----

func (s *Server) handleAttributionRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := s.engine.Run(r.Context(), attribution.TriggerManual)
	if err != nil {
		s.logger.Error("manual attribution pass failed", zap.Error(err))
		s.errorResponse(w, "attribution pass failed", http.StatusInternalServerError)
		return
	}

	s.jsonResponse(w, result)
}

// ---- Campaign Reporting ----

func (s *Server) handleCampaignSubresource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/campaigns/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]

	switch parts[1] {
	case "stats":
		stats, err := s.stats.CampaignStats(r.Context(), id)
		if err != nil {
			s.logger.Error("failed to get campaign stats", zap.Error(err))
			s.errorResponse(w, "failed to get stats", http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, stats)

	case "attributions":
		list, err := s.stats.AttributionsForCampaign(r.Context(), id)
		if err != nil {
			s.logger.Error("failed to list campaign attributions", zap.Error(err))
			s.errorResponse(w, "failed to list attributions", http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, list)

	default:
		http.NotFound(w, r)
	}
}

// ---- Click Reporting ----

func (s *Server) handleClickSubresource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/clicks/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] != "attributions" {
		http.NotFound(w, r)
		return
	}

	list, err := s.stats.AttributionsForClick(r.Context(), parts[0])
	if err != nil {
		s.logger.Error("failed to list click attributions", zap.Error(err))
		s.errorResponse(w, "failed to list attributions", http.StatusInternalServerError)
		return
	}

	s.jsonResponse(w, list)
}

// ---- Helper Methods ----

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
