package offers

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jogardn/offer-configurator/internal/catalog"
	"github.com/jogardn/offer-configurator/internal/events"
	"github.com/jogardn/offer-configurator/internal/pricing"
	"github.com/jogardn/offer-configurator/pkg/models"
)

// Gateway stores submitted offers and assigns their identifiers.
type Gateway interface {
	Insert(ctx context.Context, cfg models.Configuration) (string, error)
	Ping(ctx context.Context) error
}

// Guard wraps calls to the gateway, typically a circuit breaker.
type Guard interface {
	Execute(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	PublishOfferSubmitted(event events.OfferSubmittedEvent) error
}

type Broadcaster interface {
	Broadcast(messageType string, data interface{}, source string)
}

type Result struct {
	OfferID       string
	TotalPrice    float64
	Quote         pricing.Quote
	Configuration models.Configuration
}

// outboxSize bounds the events waiting for the publisher; beyond it new
// events are dropped rather than delaying responses.
const outboxSize = 256

type Service struct {
	catalog   *catalog.Store
	validator *Validator
	gateway   Gateway
	guard     Guard
	publisher Publisher
	hub       Broadcaster
	logger    *logrus.Logger
	now       func() time.Time

	outbox    chan events.OfferSubmittedEvent
	done      chan struct{}
	closeOnce sync.Once
	delivered sync.WaitGroup
}

type Option func(*Service)

func WithGuard(g Guard) Option { return func(s *Service) { s.guard = g } }

func WithPublisher(p Publisher) Option { return func(s *Service) { s.publisher = p } }

func WithBroadcaster(b Broadcaster) Option { return func(s *Service) { s.hub = b } }

func NewService(store *catalog.Store, gateway Gateway, logger *logrus.Logger, opts ...Option) *Service {
	s := &Service{
		catalog:   store,
		validator: NewValidator(store),
		gateway:   gateway,
		logger:    logger,
		now:       time.Now,
		outbox:    make(chan events.OfferSubmittedEvent, outboxSize),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.publisher != nil {
		s.delivered.Add(1)
		go s.deliver()
	}
	return s
}

// Close stops accepting events and waits until queued ones are published or
// ctx expires.
func (s *Service) Close(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.done) })

	finished := make(chan struct{})
	go func() {
		s.delivered.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deliver publishes queued events off the request path. A slow or
// unreachable broker only backs up the outbox.
func (s *Service) deliver() {
	defer s.delivered.Done()
	for {
		select {
		case event := <-s.outbox:
			s.publish(event)
		case <-s.done:
			for {
				select {
				case event := <-s.outbox:
					s.publish(event)
				default:
					return
				}
			}
		}
	}
}

func (s *Service) publish(event events.OfferSubmittedEvent) {
	if err := s.publisher.PublishOfferSubmitted(event); err != nil {
		s.logger.WithError(err).WithField("offer_id", event.OfferID).Error("Failed to publish offer submitted event")
	}
}

func (s *Service) Catalog() *catalog.Store { return s.catalog }

// Submit validates, prices and stores a configuration. Client supplied names
// and total are ignored. On any error nothing has been stored.
func (s *Service) Submit(ctx context.Context, cfg models.Configuration) (*Result, error) {
	cfg = stripNUL(cfg)
	sel := cfg.Selection()

	res, err := s.validator.Resolve(sel)
	if err != nil {
		return nil, err
	}
	if err := ValidateCustomer(cfg.Customer); err != nil {
		return nil, err
	}

	quote := pricing.Breakdown(sel, s.catalog)
	resolved := resolve(cfg, res, quote.Total)

	offerID, err := s.insert(ctx, resolved)
	if err != nil {
		s.logger.WithError(err).WithField("vehicle_id", resolved.VehicleID).Error("Failed to persist offer")
		return nil, &PersistenceError{Err: err}
	}

	s.logger.WithFields(logrus.Fields{
		"offer_id":    offerID,
		"vehicle_id":  resolved.VehicleID,
		"total_price": quote.Total,
	}).Info("Offer submitted successfully")

	s.announce(offerID, resolved)

	return &Result{
		OfferID:       offerID,
		TotalPrice:    quote.Total,
		Quote:         quote,
		Configuration: resolved,
	}, nil
}

func (s *Service) insert(ctx context.Context, cfg models.Configuration) (string, error) {
	if s.guard == nil {
		return s.gateway.Insert(ctx, cfg)
	}
	var offerID string
	err := s.guard.Execute(ctx, func(ctx context.Context) error {
		id, err := s.gateway.Insert(ctx, cfg)
		offerID = id
		return err
	})
	return offerID, err
}

// announce is best-effort; the offer is already stored.
func (s *Service) announce(offerID string, cfg models.Configuration) {
	event := events.OfferSubmittedEvent{
		OfferID:       offerID,
		VehicleID:     cfg.VehicleID,
		VehicleName:   cfg.VehicleName,
		ColorName:     cfg.ColorName,
		CustomerName:  strings.TrimSpace(cfg.Customer.FirstName + " " + cfg.Customer.LastName),
		CustomerEmail: cfg.Customer.Email,
		Company:       cfg.Customer.Company,
		TotalPrice:    *cfg.TotalPrice,
		SubmittedAt:   s.now().UTC(),
	}

	if s.publisher != nil {
		select {
		case <-s.done:
			s.logger.WithField("offer_id", offerID).Warn("Service closing, offer submitted event not published")
		case s.outbox <- event:
		default:
			s.logger.WithField("offer_id", offerID).Error("Event outbox full, offer submitted event dropped")
		}
	}
	if s.hub != nil {
		s.hub.Broadcast("offer_submitted", event, "offer-service")
	}
}

// resolve returns a new configuration carrying catalog names and the computed
// total. The input is left untouched.
func resolve(cfg models.Configuration, res Resolution, total float64) models.Configuration {
	out := cfg
	out.VehicleName = res.Vehicle.Name
	out.ColorName = res.Color.Name
	out.UpholsteryName = res.Upholstery.Name
	out.FactoryOptions = cloneCodes(cfg.FactoryOptions)
	out.Accessories = cloneCodes(cfg.Accessories)
	if cfg.SpecialAgreement != nil {
		note := *cfg.SpecialAgreement
		out.SpecialAgreement = &note
	}
	out.TotalPrice = &total
	return out
}

// stripNUL removes NUL characters from free text. They are valid in JSON but
// cannot be stored in Postgres text or JSONB. The input is left untouched.
func stripNUL(cfg models.Configuration) models.Configuration {
	clean := func(v string) string { return strings.ReplaceAll(v, "\x00", "") }

	c := &cfg.Customer
	c.FirstName = clean(c.FirstName)
	c.LastName = clean(c.LastName)
	c.Company = clean(c.Company)
	c.Email = clean(c.Email)
	c.Phone = clean(c.Phone)
	c.Street = clean(c.Street)
	c.PostalCode = clean(c.PostalCode)
	c.City = clean(c.City)
	c.Notes = clean(c.Notes)

	if cfg.SpecialAgreement != nil {
		note := clean(*cfg.SpecialAgreement)
		cfg.SpecialAgreement = &note
	}
	return cfg
}

func cloneCodes(codes []string) []string {
	if codes == nil {
		return []string{}
	}
	return append([]string(nil), codes...)
}

// Ping reports whether the gateway is reachable.
func (s *Service) Ping(ctx context.Context) error { return s.gateway.Ping(ctx) }

// Collections lists stored collections when the gateway supports it.
func (s *Service) Collections(ctx context.Context) ([]string, error) {
	if lister, ok := s.gateway.(interface {
		Collections(context.Context) ([]string, error)
	}); ok {
		return lister.Collections(ctx)
	}
	return []string{}, nil
}
