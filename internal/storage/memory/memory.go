package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jogardn/offer-configurator/pkg/models"
)

var ErrNotFound = errors.New("offer not found")

// Gateway keeps offers in process memory. Used for local runs and tests.
type Gateway struct {
	mutex  sync.RWMutex
	offers map[string]models.Offer
	order  []string
	now    func() time.Time
}

func New() *Gateway {
	return &Gateway{
		offers: make(map[string]models.Offer),
		now:    time.Now,
	}
}

func (g *Gateway) Insert(ctx context.Context, cfg models.Configuration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := uuid.New().String()

	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.offers[id] = models.Offer{OfferID: id, Configuration: cfg, CreatedAt: g.now().UTC()}
	g.order = append(g.order, id)
	return id, nil
}

func (g *Gateway) Ping(ctx context.Context) error { return ctx.Err() }

func (g *Gateway) Collections(ctx context.Context) ([]string, error) {
	return []string{"configuration"}, nil
}

func (g *Gateway) Get(id string) (models.Offer, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	offer, ok := g.offers[id]
	if !ok {
		return models.Offer{}, ErrNotFound
	}
	return offer, nil
}

// List returns offers in insertion order.
func (g *Gateway) List() []models.Offer {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	out := make([]models.Offer, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.offers[id])
	}
	return out
}

func (g *Gateway) Count() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.offers)
}
