package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Dan9191/referral-service/internal/middleware"
	"github.com/Dan9191/referral-service/internal/models"
	"github.com/Dan9191/referral-service/internal/service"
	"github.com/sirupsen/logrus"
)

// maxBodyBytes caps JSON request bodies
const maxBodyBytes = 1 << 20

type Handler struct {
	svc *service.Service
	log *logrus.Logger
}

func NewHandler(svc *service.Service, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

type credentialsRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	ReferralCode string `json:"referral_code,omitempty"`
}

// Signup handles user registration
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.svc.Signup(r.Context(), req.Email, req.Password, req.ReferralCode)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// Login handles user authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// CompleteProfile marks the authenticated user's profile as complete
func (h *Handler) CompleteProfile(w http.ResponseWriter, r *http.Request) {
	current, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	user, err := h.svc.CompleteProfile(r.Context(), current.ID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Referrals lists the users referred by the authenticated user
func (h *Handler) Referrals(w http.ResponseWriter, r *http.Request) {
	current, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	referrals, err := h.svc.ListReferrals(r.Context(), current.ID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, referrals)
}

// ReferralReport serves the referral report as a CSV (default) or XML attachment
func (h *Handler) ReferralReport(w http.ResponseWriter, r *http.Request) {
	var (
		body        []byte
		err         error
		contentType string
		filename    string
	)
	switch format := r.URL.Query().Get("format"); format {
	case "", "csv":
		body, err = h.svc.ReportCSV(r.Context())
		contentType, filename = "text/csv", "referral_report.csv"
	case "xml":
		body, err = h.svc.ReportXML(r.Context())
		contentType, filename = "application/xml", "referral_report.xml"
	default:
		writeError(w, http.StatusBadRequest, "unsupported report format")
		return
	}
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// currentUser resolves the authenticated subject, writing the error response on failure
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	email, ok := middleware.SubjectFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	user, err := h.svc.UserByEmail(r.Context(), email)
	if err != nil {
		h.handleError(w, r, err)
		return nil, false
	}
	return user, true
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrInvalidReferralCode):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.log.WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).Errorf("Request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
