package circuitbreaker

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Manager keeps one breaker per guarded dependency.
type Manager struct {
	breakers map[string]*CircuitBreaker
	mutex    sync.RWMutex
	logger   *logrus.Logger
}

func NewManager(logger *logrus.Logger) *Manager {
	return &Manager{
		breakers: make(map[string]*CircuitBreaker),
		logger:   logger,
	}
}

func (m *Manager) GetOrCreate(name string, config Config) *CircuitBreaker {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if breaker, exists := m.breakers[name]; exists {
		return breaker
	}

	config.Name = name
	breaker := New(config, m.logger)
	m.breakers[name] = breaker

	m.logger.WithFields(logrus.Fields{
		"circuit_breaker": name,
		"max_failures":    breaker.maxFailures,
		"timeout":         breaker.timeout.String(),
		"max_requests":    breaker.maxRequests,
	}).Info("Circuit breaker created")

	return breaker
}

func (m *Manager) Get(name string) *CircuitBreaker {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.breakers[name]
}

// Metrics returns the metrics of every breaker, ordered by name.
func (m *Manager) Metrics() []Metrics {
	m.mutex.RLock()
	names := make([]string, 0, len(m.breakers))
	for name := range m.breakers {
		names = append(names, name)
	}
	m.mutex.RUnlock()
	sort.Strings(names)

	out := make([]Metrics, 0, len(names))
	for _, name := range names {
		if b := m.Get(name); b != nil {
			out = append(out, b.Metrics())
		}
	}
	return out
}

func (m *Manager) Reset(name string) bool {
	breaker := m.Get(name)
	if breaker == nil {
		return false
	}
	breaker.Reset()
	m.logger.WithField("circuit_breaker", name).Info("Circuit breaker reset")
	return true
}
