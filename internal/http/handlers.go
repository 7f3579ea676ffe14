package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/example/bike-help/internal/catalog"
	"github.com/example/bike-help/internal/config"
	"github.com/example/bike-help/internal/dispatch"
	"github.com/example/bike-help/internal/eta"
	"github.com/example/bike-help/internal/geo"
	"github.com/example/bike-help/internal/ingest"
	"github.com/example/bike-help/internal/models"
	"github.com/example/bike-help/internal/monitor"
	"github.com/example/bike-help/internal/observability"
	"github.com/example/bike-help/internal/storage"
)

// Deps are the wired collaborators of the API server. Optional fields may be
// nil; the corresponding endpoints degrade or return 503.
type Deps struct {
	Points   storage.PointStore
	Users    storage.UserStore
	Settings storage.SettingsStore
	Alerts   storage.AlertLog
	Catalog  *catalog.Catalog
	Monitor  *monitor.Manager
	Geo      *geo.RedisGeo        // optional
	Kafka    *ingest.KafkaProducer // optional
	WSReg    *dispatch.WSRegistry
	FCM      *dispatch.FCMDispatcher // optional
	ETA      eta.Client              // optional OSRM client
	ETACache *eta.Cache              // optional
}

type Server struct {
	cfg     config.ServerConfig
	logger  *slog.Logger
	deps    Deps
	mux     *mux.Router
	handler http.Handler
}

func NewServer(cfg config.ServerConfig, logger *slog.Logger, deps Deps) *Server {
	s := &Server{cfg: cfg, logger: logger, deps: deps, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	s.handler = c.Handler(s.mux)
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/points", s.handleListPoints).Methods("GET")
	api.HandleFunc("/categories", s.handleCategories).Methods("GET")
	api.HandleFunc("/leaderboard", s.handleLeaderboard).Methods("GET")
	api.HandleFunc("/points/{id}", s.handleGetPoint).Methods("GET")
	api.HandleFunc("/riders/nearby", s.handleNearbyRiders).Methods("GET")

	auth := api.NewRoute().Subrouter()
	auth.Use(s.authMiddleware)
	auth.HandleFunc("/points", s.handleCreatePoint).Methods("POST")
	auth.HandleFunc("/points/{id}", s.handleDeletePoint).Methods("DELETE")
	auth.HandleFunc("/points/{id}/join", s.handleJoinRide).Methods("POST")
	auth.HandleFunc("/points/{id}/leave", s.handleLeaveRide).Methods("POST")
	auth.HandleFunc("/profile", s.handleGetProfile).Methods("GET")
	auth.HandleFunc("/profile", s.handlePutProfile).Methods("PUT")
	auth.HandleFunc("/profile/rides", s.handleJoinedRides).Methods("GET")
	auth.HandleFunc("/monitor/toggle", s.handleToggle).Methods("PUT")
	auth.HandleFunc("/monitor/start", s.handleMonitorStart).Methods("POST")
	auth.HandleFunc("/monitor/stop", s.handleMonitorStop).Methods("POST")
	auth.HandleFunc("/locations", s.handleLocation).Methods("POST")
	auth.HandleFunc("/alerts", s.handleAlerts).Methods("GET")
	auth.HandleFunc("/devices", s.handleRegisterDevice).Methods("POST")

	s.mux.HandleFunc("/ws/{user_id}", s.handleWS)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.handler.ServeHTTP(w, r) }

type createPointRequest struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Category    string       `json:"category"`
	Loc         models.Coord `json:"loc"`
	Icon        int          `json:"icon"`
	ImageURL    string       `json:"image_url"`
	Ride        bool         `json:"ride"`
	Start       string       `json:"start"` // models.StartLayout, rides only
}

func (s *Server) handleCreatePoint(w http.ResponseWriter, r *http.Request) {
	var req createPointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Description == "" {
		http.Error(w, "name and description are required", http.StatusBadRequest)
		return
	}
	p := models.MapPoint{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Loc:         req.Loc,
		Icon:        req.Icon,
		ImageURL:    req.ImageURL,
		CreatorID:   userIDFromContext(r.Context()),
		Ride:        req.Ride,
	}
	if req.Start != "" {
		if !req.Ride {
			http.Error(w, "start is only valid for rides", http.StatusBadRequest)
			return
		}
		t, err := time.Parse(models.StartLayout, req.Start)
		if err != nil {
			http.Error(w, "invalid start, want "+models.StartLayout, http.StatusBadRequest)
			return
		}
		p.Start = &t
	}
	if err := s.deps.Points.CreatePoint(r.Context(), &p); err != nil {
		s.logger.Error("create point failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.deps.Catalog.Invalidate()
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListPoints(w http.ResponseWriter, r *http.Request) {
	points, err := s.deps.Catalog.Snapshot(r.Context())
	if errors.Is(err, catalog.ErrNotLoaded) {
		// First load has not completed; serve straight from the store.
		points, err = s.deps.Points.ListPoints(r.Context())
	}
	if err != nil {
		s.logger.Error("list points failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	q := r.URL.Query()
	crit := catalog.Criteria{
		Category:  q.Get("category"),
		CreatorID: q.Get("creator"),
		Search:    q.Get("q"),
	}
	if q.Get("lat") != "" && q.Get("lon") != "" {
		lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
		lon, lonErr := strconv.ParseFloat(q.Get("lon"), 64)
		if latErr != nil || lonErr != nil {
			http.Error(w, "invalid lat/lon", http.StatusBadRequest)
			return
		}
		crit.Origin = &models.Coord{Lat: lat, Lon: lon}
		if v := q.Get("radius_m"); v != "" {
			radius, err := strconv.ParseFloat(v, 64)
			if err != nil {
				http.Error(w, "invalid radius_m", http.StatusBadRequest)
				return
			}
			crit.RadiusMeters = radius
		}
	}
	writeJSON(w, http.StatusOK, catalog.Filter(points, crit))
}

func (s *Server) handleGetPoint(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, err := s.deps.Points.GetPoint(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("get point failed", "point_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := struct {
		models.MapPoint
		ETASeconds *float64 `json:"eta_seconds,omitempty"`
	}{MapPoint: *p}

	q := r.URL.Query()
	if q.Get("lat") != "" && q.Get("lon") != "" {
		lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
		lon, lonErr := strconv.ParseFloat(q.Get("lon"), 64)
		if latErr == nil && lonErr == nil {
			v := s.estimateETA(models.Coord{Lat: lat, Lon: lon}, p.Loc)
			resp.ETASeconds = &v
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// estimateETA prefers the cache, then the routing client, then the naive
// distance/speed estimate.
func (s *Server) estimateETA(from, to models.Coord) float64 {
	if s.deps.ETACache != nil {
		if v, ok := s.deps.ETACache.Get(from, to); ok {
			return v
		}
	}
	if s.deps.ETA != nil {
		if v, err := s.deps.ETA.EstimateSeconds(from, to); err == nil {
			if s.deps.ETACache != nil {
				s.deps.ETACache.Set(from, to, v)
			}
			return v
		}
	}
	return eta.EstimateSeconds(from, to, s.cfg.DefaultSpeedMps)
}

func (s *Server) handleDeletePoint(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := s.deps.Points.DeletePoint(r.Context(), id, userIDFromContext(r.Context()))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
		return
	case errors.Is(err, storage.ErrNotCreator):
		http.Error(w, "only the creator may delete a point", http.StatusForbidden)
		return
	case err != nil:
		s.logger.Error("delete point failed", "point_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.deps.Catalog.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleJoinRide(w http.ResponseWriter, r *http.Request) {
	s.handleMembership(w, r, s.deps.Points.JoinRide)
}

func (s *Server) handleLeaveRide(w http.ResponseWriter, r *http.Request) {
	s.handleMembership(w, r, s.deps.Points.LeaveRide)
}

func (s *Server) handleMembership(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id, userID string) error) {
	id := mux.Vars(r)["id"]
	err := op(r.Context(), id, userIDFromContext(r.Context()))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
		return
	case errors.Is(err, storage.ErrNotRide):
		http.Error(w, "point is not a ride", http.StatusConflict)
		return
	case err != nil:
		s.logger.Error("ride membership update failed", "point_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.deps.Catalog.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.deps.Points.Categories(r.Context())
	if err != nil {
		s.logger.Error("list categories failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if cats == nil {
		cats = []string{}
	}
	writeJSON(w, http.StatusOK, cats)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	users, err := s.deps.Users.Leaderboard(r.Context(), limit)
	if err != nil {
		s.logger.Error("leaderboard failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if users == nil {
		users = []models.UserProfile{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Users.GetProfile(r.Context(), userIDFromContext(r.Context()))
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("get profile failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	var p models.UserProfile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p.ID = userIDFromContext(r.Context())
	if err := s.deps.Users.UpsertProfile(r.Context(), &p); err != nil {
		s.logger.Error("upsert profile failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleJoinedRides(w http.ResponseWriter, r *http.Request) {
	rides, err := s.deps.Points.JoinedRides(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		s.logger.Error("joined rides failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if rides == nil {
		rides = []models.MapPoint{}
	}
	writeJSON(w, http.StatusOK, rides)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	userID := userIDFromContext(r.Context())
	if err := s.deps.Settings.SetSharingEnabled(r.Context(), userID, req.Enabled); err != nil {
		s.logger.Error("toggle update failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	// Revoking sharing tears down a running session.
	if !req.Enabled {
		s.deps.Monitor.Stop(userID)
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleMonitorStart(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	err := s.deps.Monitor.Start(r.Context(), userID)
	if errors.Is(err, monitor.ErrSharingDisabled) {
		http.Error(w, "location sharing is disabled", http.StatusPreconditionFailed)
		return
	}
	if err != nil {
		s.logger.Error("monitor start failed", "user_id", userID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMonitorStop(w http.ResponseWriter, r *http.Request) {
	s.deps.Monitor.Stop(userIDFromContext(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	var f models.LocationFix
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.UserID = userIDFromContext(r.Context())
	if f.RecordedAt.IsZero() {
		f.RecordedAt = time.Now()
	}
	observability.FixesTotal.Inc()

	// publish to kafka if configured
	if s.deps.Kafka != nil {
		if err := s.deps.Kafka.PublishFix(f); err != nil {
			s.logger.Warn("kafka publish failed", "error", err)
		}
	}
	// presence update is best-effort
	if s.deps.Geo != nil {
		if err := s.deps.Geo.UpsertRider(r.Context(), f); err != nil {
			s.logger.Warn("rider presence update failed", "error", err)
		}
	}
	s.deps.Monitor.Deliver(f)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNearbyRiders(w http.ResponseWriter, r *http.Request) {
	if s.deps.Geo == nil {
		http.Error(w, "rider presence unavailable", http.StatusServiceUnavailable)
		return
	}
	q := r.URL.Query()
	lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
	lon, lonErr := strconv.ParseFloat(q.Get("lon"), 64)
	if latErr != nil || lonErr != nil {
		http.Error(w, "lat and lon are required", http.StatusBadRequest)
		return
	}
	radius := 1000.0
	if v := q.Get("radius_m"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			radius = f
		}
	}
	riders, err := s.deps.Geo.NearbyRiders(r.Context(), models.Coord{Lat: lat, Lon: lon}, radius, 50)
	if err != nil {
		s.logger.Error("nearby riders failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if riders == nil {
		riders = []geo.NearbyRider{}
	}
	writeJSON(w, http.StatusOK, riders)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.deps.Alerts.RecentAlerts(r.Context(), userIDFromContext(r.Context()), 50)
	if err != nil {
		s.logger.Error("alert history failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	if s.deps.FCM == nil {
		http.Error(w, "push delivery not configured", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.deps.FCM.RegisterToken(userIDFromContext(r.Context()), req.Token)
	w.WriteHeader(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["user_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.deps.WSReg.Add(id, conn)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
