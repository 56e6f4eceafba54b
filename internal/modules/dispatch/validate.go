package dispatch

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"

	"github.com/zeizeiwaii/Datastar/internal/modules/clustering"
	"github.com/zeizeiwaii/Datastar/internal/types"
)

// Validator is the all-or-nothing gate in front of the pipeline.
type Validator struct {
	validate *validator.Validate
	trans    ut.Translator
}

func NewValidator() *Validator {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")
	_ = enTranslations.RegisterDefaultTranslations(validate, trans)
	return &Validator{validate: validate, trans: trans}
}

// Batch validates every record and converts the batch. The first invalid
// or repeated-id record fails the batch with a *clustering.ValidationError.
func (v *Validator) Batch(records []Record) ([]clustering.TripRequest, error) {
	out := make([]clustering.TripRequest, len(records))
	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		if err := v.validate.Struct(r); err != nil {
			return nil, v.toValidationError(i, r.ID, err)
		}
		if _, dup := seen[r.ID]; dup {
			return nil, clustering.DuplicateIDError(i, types.ID(r.ID))
		}
		seen[r.ID] = struct{}{}
		t, err := time.Parse(time.RFC3339, r.DepartureTime)
		if err != nil {
			return nil, &clustering.ValidationError{Index: i, RequestID: r.ID, Fields: []clustering.FieldError{
				{Field: "departure_time", Message: "departure_time must be an RFC 3339 timestamp"},
			}}
		}
		out[i] = clustering.TripRequest{
			ID:            types.ID(r.ID),
			Origin:        types.Point{Lat: *r.Origin.Lat, Lng: *r.Origin.Lng},
			Destination:   types.Point{Lat: *r.Destination.Lat, Lng: *r.Destination.Lng},
			DepartureTime: t,
		}
		if r.PassengerCount != nil {
			out[i].PassengerCount = *r.PassengerCount
		}
	}
	return out, nil
}

func (v *Validator) toValidationError(index int, id string, err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return &clustering.ValidationError{Index: index, RequestID: id, Fields: []clustering.FieldError{{Field: "record", Message: err.Error()}}}
	}
	ve := &clustering.ValidationError{Index: index, RequestID: id}
	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, found := strings.Cut(field, "."); found {
			field = rest
		}
		ve.Fields = append(ve.Fields, clustering.FieldError{Field: field, Message: fe.Translate(v.trans)})
	}
	return ve
}
