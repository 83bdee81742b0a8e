package fare

import (
	"fmt"
	"strings"

	"sjsage522/farewatch/pkg/errors"
)

// DefaultBaseURL is the search site queried when no base URL is configured
const DefaultBaseURL = "https://www.kayak.es"

// searchQuery is appended to every search URL
const searchQuery = "ucs=1993xcp"

// SearchParams identifies one flight search. Values are opaque and go into the URL as given.
type SearchParams struct {
	Origin        string
	Destination   string
	DepartureDate string
	// ReturnDate is empty for one-way searches
	ReturnDate string
}

// RoundTrip reports whether a return date was supplied
func (p SearchParams) RoundTrip() bool {
	return p.ReturnDate != ""
}

// Key returns ORIGIN-DEST/DEPARTURE[/RETURN]
func (p SearchParams) Key() string {
	key := p.Origin + "-" + p.Destination + "/" + p.DepartureDate
	if p.RoundTrip() {
		key += "/" + p.ReturnDate
	}
	return key
}

// Validate rejects params that cannot form a search URL
func (p SearchParams) Validate() error {
	var missing []string
	if p.Origin == "" {
		missing = append(missing, "origin")
	}
	if p.Destination == "" {
		missing = append(missing, "destination")
	}
	if p.DepartureDate == "" {
		missing = append(missing, "departure date")
	}
	if len(missing) > 0 {
		return errors.NewValidation(p.Key(), "missing "+strings.Join(missing, ", "))
	}
	return nil
}

// BuildURL returns the results page URL for p.
// A return date selects the round-trip form.
func BuildURL(baseURL string, p SearchParams) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	if !p.RoundTrip() {
		return fmt.Sprintf("%s/flights/%s-%s/%s?%s",
			baseURL, p.Origin, p.Destination, p.DepartureDate, searchQuery)
	}
	return fmt.Sprintf("%s/flights/%s-%s/%s/%s?%s",
		baseURL, p.Origin, p.Destination, p.DepartureDate, p.ReturnDate, searchQuery)
}
