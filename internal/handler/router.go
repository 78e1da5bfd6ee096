package handler

import (
	"net/http"

	"github.com/Dan9191/referral-service/internal/metrics"
	"github.com/Dan9191/referral-service/internal/middleware"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// RouterConfig carries what NewRouter needs beyond the handler
type RouterConfig struct {
	Auth    mux.MiddlewareFunc
	IsAdmin func(email string) bool
	Metrics *metrics.Metrics
	Log     *logrus.Logger
}

// NewRouter wires the HTTP API. Without an Auth middleware no subject is
// ever attached, so protected and admin routes answer 401.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()
	mws := []mux.MiddlewareFunc{middleware.AccessLog(cfg.Log), cfg.Metrics.Instrument}
	if cfg.Auth != nil {
		mws = append(mws, cfg.Auth)
	}
	r.Use(mws...)

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	// Public routes
	api.HandleFunc("/signup", h.Signup).Methods(http.MethodPost)
	api.HandleFunc("/login", h.Login).Methods(http.MethodPost)

	// Protected routes
	protected := api.NewRoute().Subrouter()
	protected.Use(middleware.RequireAuth)
	protected.HandleFunc("/profile/complete", h.CompleteProfile).Methods(http.MethodPut)
	protected.HandleFunc("/referrals", h.Referrals).Methods(http.MethodGet)

	// Admin routes
	admin := api.NewRoute().Subrouter()
	admin.Use(middleware.RequireAdmin(cfg.IsAdmin))
	admin.HandleFunc("/referral-report", h.ReferralReport).Methods(http.MethodGet)

	return r
}
