package models

import "time"

type Customer struct {
	FirstName  string `json:"first_name" validate:"required"`
	LastName   string `json:"last_name" validate:"required"`
	Company    string `json:"company,omitempty"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone,omitempty"`
	Street     string `json:"street,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	City       string `json:"city,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// Selection is the part of a configuration that drives pricing.
type Selection struct {
	VehicleID      string   `json:"vehicle_id"`
	ColorCode      string   `json:"color_code"`
	UpholsteryCode string   `json:"upholstery_code"`
	FactoryOptions []string `json:"factory_options"`
	Accessories    []string `json:"accessories"`
}

// Configuration is both the submission payload and the persisted record.
// Name fields and TotalPrice are overwritten server-side.
type Configuration struct {
	VehicleID        string   `json:"vehicle_id"`
	VehicleName      string   `json:"vehicle_name"`
	ColorCode        string   `json:"color_code"`
	ColorName        string   `json:"color_name"`
	UpholsteryCode   string   `json:"upholstery_code"`
	UpholsteryName   string   `json:"upholstery_name"`
	FactoryOptions   []string `json:"factory_options"`
	Accessories      []string `json:"accessories"`
	SpecialAgreement *string  `json:"special_agreement,omitempty"`
	Customer         Customer `json:"customer"`
	TotalPrice       *float64 `json:"total_price,omitempty"`
}

func (c Configuration) Selection() Selection {
	return Selection{
		VehicleID:      c.VehicleID,
		ColorCode:      c.ColorCode,
		UpholsteryCode: c.UpholsteryCode,
		FactoryOptions: c.FactoryOptions,
		Accessories:    c.Accessories,
	}
}

type Offer struct {
	OfferID       string        `json:"offer_id"`
	Configuration Configuration `json:"configuration"`
	CreatedAt     time.Time     `json:"created_at"`
}

type OfferRequest struct {
	Configuration Configuration `json:"configuration"`
}

type OfferResponse struct {
	OfferID    string  `json:"offer_id"`
	TotalPrice float64 `json:"total_price"`
}
