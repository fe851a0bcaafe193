package offers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/offer-configurator/internal/circuitbreaker"
	"github.com/jogardn/offer-configurator/pkg/models"
)

const maxBodyBytes = 64 << 10

// Diagnostics carries what the diagnostics endpoint reports besides storage.
type Diagnostics struct {
	DatabaseURLSet  bool
	DatabaseNameSet bool
	Breakers        *circuitbreaker.Manager
	Dashboard       interface{ ClientCount() int }
}

type Handler struct {
	service *Service
	diag    Diagnostics
	logger  *logrus.Logger
}

func NewHandler(service *Service, diag Diagnostics, logger *logrus.Logger) *Handler {
	return &Handler{service: service, diag: diag, logger: logger}
}

func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/", h.Root).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/catalog/vehicles", h.ListVehicles).Methods("GET", "OPTIONS")
	api.HandleFunc("/catalog/colors", h.ListColors).Methods("GET", "OPTIONS")
	api.HandleFunc("/catalog/upholsteries", h.ListUpholsteries).Methods("GET", "OPTIONS")
	api.HandleFunc("/catalog/factory-options", h.ListFactoryOptions).Methods("GET", "OPTIONS")
	api.HandleFunc("/catalog/accessories", h.ListAccessories).Methods("GET", "OPTIONS")
	api.HandleFunc("/offers", h.CreateOffer).Methods("POST", "OPTIONS")
	api.HandleFunc("/diagnostics", h.Diagnostics).Methods("GET")
}

func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, map[string]string{"message": "Configurator API ready"})
}

func (h *Handler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, h.service.Catalog().Vehicles())
}

func (h *Handler) ListColors(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, h.service.Catalog().Colors())
}

func (h *Handler) ListUpholsteries(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, h.service.Catalog().Upholsteries())
}

func (h *Handler) ListFactoryOptions(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, h.service.Catalog().FactoryOptions())
}

func (h *Handler) ListAccessories(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, h.service.Catalog().Accessories())
}

func (h *Handler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	var req models.OfferRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.logger.WithError(err).Warn("Failed to decode offer request")
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.Submit(r.Context(), req.Configuration)
	if err != nil {
		var customerErr *CustomerError
		switch {
		case errors.Is(err, ErrInvalidSelection):
			h.logger.WithError(err).Info("Rejected offer with invalid catalog selection")
			h.respondWithError(w, http.StatusBadRequest, "Invalid catalog selection")
		case errors.As(err, &customerErr):
			h.respondWithJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"success": false,
				"message": "Invalid customer data",
				"details": customerErr.Fields,
			})
		case errors.Is(err, ErrPersistence):
			h.respondWithError(w, http.StatusInternalServerError, err.Error())
		default:
			h.logger.WithError(err).Error("Unexpected error submitting offer")
			h.respondWithError(w, http.StatusInternalServerError, "Failed to submit offer")
		}
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	h.respondWithJSON(w, http.StatusCreated, models.OfferResponse{
		OfferID:    result.OfferID,
		TotalPrice: result.TotalPrice,
	})
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.service.Ping(ctx); err != nil {
		h.respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "unhealthy",
			"service": "offer-service",
			"error":   "database connection failed",
		})
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "offer-service",
	})
}

func (h *Handler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := map[string]interface{}{
		"backend":           "running",
		"database":          "not available",
		"connection_status": "not connected",
		"collections":       []string{},
		"database_url":      setOrNot(h.diag.DatabaseURLSet),
		"database_name":     setOrNot(h.diag.DatabaseNameSet),
	}

	if err := h.service.Ping(ctx); err != nil {
		response["database"] = "error: " + truncate(err.Error(), 50)
	} else {
		response["database"] = "available"
		response["connection_status"] = "connected"
		collections, err := h.service.Collections(ctx)
		if err != nil {
			response["database"] = "connected but error: " + truncate(err.Error(), 50)
		} else {
			if len(collections) > 10 {
				collections = collections[:10]
			}
			response["collections"] = collections
			response["database"] = "connected and working"
		}
	}

	if h.diag.Breakers != nil {
		response["circuit_breakers"] = h.diag.Breakers.Metrics()
	}
	if h.diag.Dashboard != nil {
		response["dashboard_clients"] = h.diag.Dashboard.ClientCount()
	}

	h.respondWithJSON(w, http.StatusOK, response)
}

func setOrNot(set bool) string {
	if set {
		return "set"
	}
	return "not set"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
		http.Error(w, `{"success":false,"message":"encode error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func (h *Handler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, map[string]interface{}{
		"success": false,
		"message": message,
	})
}
