package fare

import (
	"time"

	"sjsage522/farewatch/pkg/errors"
)

// StatusOK marks a quote that carries a price
const StatusOK = "ok"

// Quote is the published and stored outcome of one fetch
type Quote struct {
	Route         string    `json:"route"`
	Origin        string    `json:"origin"`
	Destination   string    `json:"destination"`
	DepartureDate string    `json:"departure_date"`
	ReturnDate    string    `json:"return_date,omitempty"`
	URL           string    `json:"url"`
	Price         *int      `json:"price"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// NewQuote records the result of FetchPrice for p
func NewQuote(p SearchParams, url string, price int, err error, at time.Time) Quote {
	q := Quote{
		Route:         p.Key(),
		Origin:        p.Origin,
		Destination:   p.Destination,
		DepartureDate: p.DepartureDate,
		ReturnDate:    p.ReturnDate,
		URL:           url,
		Status:        StatusOK,
		FetchedAt:     at.UTC(),
	}

	if err != nil {
		q.Status = string(errors.TypeOf(err))
		if q.Status == "" {
			q.Status = "error"
		}
		q.Error = err.Error()
		return q
	}

	q.Price = &price
	return q
}
