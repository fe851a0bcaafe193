package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/offer-configurator/internal/events"
)

// ErrInvalidEvent marks events that will never succeed on retry.
var ErrInvalidEvent = errors.New("invalid offer event")

type Entry struct {
	Event      events.OfferSubmittedEvent `json:"event"`
	ReceivedAt time.Time                  `json:"received_at"`
}

// Inbox is the dealer's view of submitted offers, newest first.
type Inbox struct {
	entries map[string]*Entry
	order   []string
	mutex   sync.RWMutex
	logger  *logrus.Logger
	now     func() time.Time
}

func NewInbox(logger *logrus.Logger) *Inbox {
	return &Inbox{
		entries: make(map[string]*Entry),
		logger:  logger,
		now:     time.Now,
	}
}

// HandleOfferSubmitted is idempotent per offer id, so redelivered events are
// stored once.
func (i *Inbox) HandleOfferSubmitted(ctx context.Context, event events.OfferSubmittedEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.OfferID == "" || event.CustomerEmail == "" {
		return ErrInvalidEvent
	}

	i.mutex.Lock()
	defer i.mutex.Unlock()

	if _, exists := i.entries[event.OfferID]; exists {
		i.logger.WithField("offer_id", event.OfferID).Debug("Duplicate offer event ignored")
		return nil
	}

	i.entries[event.OfferID] = &Entry{Event: event, ReceivedAt: i.now().UTC()}
	i.order = append(i.order, event.OfferID)

	i.logger.WithFields(logrus.Fields{
		"offer_id":     event.OfferID,
		"customer":     event.CustomerName,
		"total_price":  event.TotalPrice,
		"total_stored": len(i.entries),
	}).Info("Offer received in dealer inbox")

	return nil
}

func (i *Inbox) IsRetryable(err error) bool {
	return !errors.Is(err, ErrInvalidEvent) && !errors.Is(err, context.Canceled)
}

func (i *Inbox) List() []Entry {
	i.mutex.RLock()
	defer i.mutex.RUnlock()

	out := make([]Entry, 0, len(i.order))
	for n := len(i.order) - 1; n >= 0; n-- {
		out = append(out, *i.entries[i.order[n]])
	}
	return out
}

func (i *Inbox) Get(offerID string) (Entry, bool) {
	i.mutex.RLock()
	defer i.mutex.RUnlock()
	entry, ok := i.entries[offerID]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// MetricsSource reports consumer counters for the health endpoint.
type MetricsSource interface {
	Metrics() events.ConsumerMetrics
}

type Handler struct {
	inbox   *Inbox
	metrics MetricsSource
	logger  *logrus.Logger
}

func NewHandler(inbox *Inbox, metrics MetricsSource, logger *logrus.Logger) *Handler {
	return &Handler{inbox: inbox, metrics: metrics, logger: logger}
}

func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.HandleFunc("/inbox", h.ListInbox).Methods("GET")
	router.HandleFunc("/inbox/{id}", h.GetEntry).Methods("GET")
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":  "healthy",
		"service": "offer-notifier",
	}
	if h.metrics != nil {
		body["consumer"] = h.metrics.Metrics()
	}
	respondWithJSON(w, http.StatusOK, body)
}

func (h *Handler) ListInbox(w http.ResponseWriter, r *http.Request) {
	entries := h.inbox.List()
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"offers":  entries,
		"count":   len(entries),
	})
}

func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	offerID := mux.Vars(r)["id"]

	entry, ok := h.inbox.Get(offerID)
	if !ok {
		h.logger.WithField("offer_id", offerID).Warn("Offer not found in inbox")
		respondWithJSON(w, http.StatusNotFound, map[string]interface{}{
			"success": false,
			"message": "Offer not found",
		})
		return
	}
	respondWithJSON(w, http.StatusOK, entry)
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
