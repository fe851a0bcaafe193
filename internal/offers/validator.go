package offers

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jogardn/offer-configurator/internal/catalog"
	"github.com/jogardn/offer-configurator/pkg/models"
)

// validate caches struct metadata and is safe for concurrent use.
var validate = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// Resolution holds the catalog entries a valid selection points at.
type Resolution struct {
	Vehicle    catalog.Vehicle
	Color      catalog.Item
	Upholstery catalog.Item
}

type Validator struct {
	catalog *catalog.Store
}

func NewValidator(store *catalog.Store) *Validator {
	return &Validator{catalog: store}
}

// Resolve checks the required single-valued selections. Factory option and
// accessory codes are not checked; unknown ones simply price at zero.
func (v *Validator) Resolve(sel models.Selection) (Resolution, error) {
	var (
		res     Resolution
		ok      bool
		missing []string
	)
	if res.Vehicle, ok = v.catalog.Vehicle(sel.VehicleID); !ok {
		missing = append(missing, "vehicle_id")
	}
	if res.Color, ok = v.catalog.Color(sel.ColorCode); !ok {
		missing = append(missing, "color_code")
	}
	if res.Upholstery, ok = v.catalog.Upholstery(sel.UpholsteryCode); !ok {
		missing = append(missing, "upholstery_code")
	}
	if len(missing) > 0 {
		return Resolution{}, &SelectionError{Fields: missing}
	}
	return res, nil
}

// ValidateCustomer checks the validate tags on models.Customer after trimming
// surrounding whitespace, so a blank name counts as missing.
func ValidateCustomer(c models.Customer) error {
	c.FirstName = strings.TrimSpace(c.FirstName)
	c.LastName = strings.TrimSpace(c.LastName)
	c.Email = strings.TrimSpace(c.Email)

	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	violations := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		if _, seen := violations[fe.Field()]; seen {
			continue
		}
		violations[fe.Field()] = violationCode(fe.Tag())
	}
	return &CustomerError{Fields: violations}
}

func violationCode(tag string) string {
	switch tag {
	case "required":
		return "required"
	case "email":
		return "invalid_format"
	default:
		return tag
	}
}
