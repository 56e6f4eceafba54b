package clustering

import (
	"sort"
	"time"

	"github.com/zeizeiwaii/Datastar/internal/types"
)

// Preprocessed is the time-sorted, expiry-filtered view of a batch.
type Preprocessed struct {
	Kept     []TripRequest
	Expired  []TripRequest
	Baseline time.Time
}

// Validate checks required fields and coordinate ranges of one request.
func Validate(index int, r TripRequest) error {
	var fields []FieldError
	if r.ID == "" {
		fields = append(fields, FieldError{Field: "id", Message: "is required"})
	}
	if !r.Origin.Valid() {
		fields = append(fields, FieldError{Field: "origin", Message: "lat must be within [-90,90] and lng within [-180,180]"})
	}
	if !r.Destination.Valid() {
		fields = append(fields, FieldError{Field: "destination", Message: "lat must be within [-90,90] and lng within [-180,180]"})
	}
	if r.PassengerCount < 0 {
		fields = append(fields, FieldError{Field: "passenger_count", Message: "must be at least 1"})
	}
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Index: index, RequestID: string(r.ID), Fields: fields}
}

// DuplicateIDError reports a request id already seen earlier in the batch.
func DuplicateIDError(index int, id types.ID) *ValidationError {
	return &ValidationError{Index: index, RequestID: string(id), Fields: []FieldError{{Field: "id", Message: "duplicate id"}}}
}

// Preprocess validates the batch, rejects repeated ids, drops requests departing more than expiry
// after the earliest departure and sorts the rest by departure time.
// Requests without a departure time are retained.
func Preprocess(reqs []TripRequest, expiry time.Duration) (Preprocessed, error) {
	var out Preprocessed
	seen := make(map[types.ID]struct{}, len(reqs))
	for i, r := range reqs {
		if err := Validate(i, r); err != nil {
			return Preprocessed{}, err
		}
		if _, dup := seen[r.ID]; dup {
			return Preprocessed{}, DuplicateIDError(i, r.ID)
		}
		seen[r.ID] = struct{}{}
	}

	for _, r := range reqs {
		if r.DepartureTime.IsZero() {
			continue
		}
		if out.Baseline.IsZero() || r.DepartureTime.Before(out.Baseline) {
			out.Baseline = r.DepartureTime
		}
	}

	out.Kept = make([]TripRequest, 0, len(reqs))
	for _, r := range reqs {
		if !r.DepartureTime.IsZero() && r.DepartureTime.Sub(out.Baseline) > expiry {
			out.Expired = append(out.Expired, r)
			continue
		}
		out.Kept = append(out.Kept, r)
	}

	sort.SliceStable(out.Kept, func(i, j int) bool {
		return out.Kept[i].DepartureTime.Before(out.Kept[j].DepartureTime)
	})
	return out, nil
}
