package catalog

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateCode = errors.New("duplicate catalog code")
	ErrNegativePrice = errors.New("negative catalog price")
)

type Vehicle struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	BasePrice float64 `json:"base_price"`
}

// Item covers colors, upholsteries, factory options and accessories.
type Item struct {
	Code  string  `json:"code"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type Data struct {
	Vehicles       []Vehicle
	Colors         []Item
	Upholsteries   []Item
	FactoryOptions []Item
	Accessories    []Item
}

// Store is an immutable catalog. All methods are safe for concurrent use.
type Store struct {
	vehicles       []Vehicle
	colors         []Item
	upholsteries   []Item
	factoryOptions []Item
	accessories    []Item

	vehicleIdx    map[string]int
	colorIdx      map[string]int
	upholsteryIdx map[string]int
	optionIdx     map[string]int
	accessoryIdx  map[string]int
}

func New(d Data) (*Store, error) {
	s := &Store{
		vehicles:       append([]Vehicle(nil), d.Vehicles...),
		colors:         append([]Item(nil), d.Colors...),
		upholsteries:   append([]Item(nil), d.Upholsteries...),
		factoryOptions: append([]Item(nil), d.FactoryOptions...),
		accessories:    append([]Item(nil), d.Accessories...),
		vehicleIdx:     make(map[string]int, len(d.Vehicles)),
	}

	for i, v := range s.vehicles {
		if _, exists := s.vehicleIdx[v.ID]; exists {
			return nil, fmt.Errorf("vehicles: %w: %q", ErrDuplicateCode, v.ID)
		}
		if v.BasePrice < 0 {
			return nil, fmt.Errorf("vehicles: %w: %q", ErrNegativePrice, v.ID)
		}
		s.vehicleIdx[v.ID] = i
	}

	var err error
	if s.colorIdx, err = index("colors", s.colors); err != nil {
		return nil, err
	}
	if s.upholsteryIdx, err = index("upholsteries", s.upholsteries); err != nil {
		return nil, err
	}
	if s.optionIdx, err = index("factory options", s.factoryOptions); err != nil {
		return nil, err
	}
	if s.accessoryIdx, err = index("accessories", s.accessories); err != nil {
		return nil, err
	}
	return s, nil
}

func index(list string, items []Item) (map[string]int, error) {
	idx := make(map[string]int, len(items))
	for i, it := range items {
		if _, exists := idx[it.Code]; exists {
			return nil, fmt.Errorf("%s: %w: %q", list, ErrDuplicateCode, it.Code)
		}
		if it.Price < 0 {
			return nil, fmt.Errorf("%s: %w: %q", list, ErrNegativePrice, it.Code)
		}
		idx[it.Code] = i
	}
	return idx, nil
}

func (s *Store) Vehicles() []Vehicle { return append([]Vehicle(nil), s.vehicles...) }
func (s *Store) Colors() []Item { return append([]Item(nil), s.colors...) }
func (s *Store) Upholsteries() []Item { return append([]Item(nil), s.upholsteries...) }
func (s *Store) FactoryOptions() []Item { return append([]Item(nil), s.factoryOptions...) }
func (s *Store) Accessories() []Item { return append([]Item(nil), s.accessories...) }

func (s *Store) Vehicle(id string) (Vehicle, bool) {
	i, ok := s.vehicleIdx[id]
	if !ok {
		return Vehicle{}, false
	}
	return s.vehicles[i], true
}

func (s *Store) Color(code string) (Item, bool) { return lookup(s.colors, s.colorIdx, code) }

func (s *Store) Upholstery(code string) (Item, bool) {
	return lookup(s.upholsteries, s.upholsteryIdx, code)
}

func (s *Store) FactoryOption(code string) (Item, bool) {
	return lookup(s.factoryOptions, s.optionIdx, code)
}

func (s *Store) Accessory(code string) (Item, bool) {
	return lookup(s.accessories, s.accessoryIdx, code)
}

func lookup(items []Item, idx map[string]int, code string) (Item, bool) {
	i, ok := idx[code]
	if !ok {
		return Item{}, false
	}
	return items[i], true
}
