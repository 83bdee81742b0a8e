package fare

import (
	"testing"

	"sjsage522/farewatch/pkg/errors"

	"github.com/stretchr/testify/assert"
)

func TestBuildURL(t *testing.T) {
	testCases := []struct {
		name   string
		base   string
		params SearchParams
		want   string
	}{
		{
			name:   "one-way",
			base:   "https://www.kayak.es",
			params: SearchParams{Origin: "MAD", Destination: "BCN", DepartureDate: "2025-01-10"},
			want:   "https://www.kayak.es/flights/MAD-BCN/2025-01-10?ucs=1993xcp",
		},
		{
			name:   "round-trip",
			base:   "https://www.kayak.es",
			params: SearchParams{Origin: "MAD", Destination: "BCN", DepartureDate: "2025-01-10", ReturnDate: "2025-01-17"},
			want:   "https://www.kayak.es/flights/MAD-BCN/2025-01-10/2025-01-17?ucs=1993xcp",
		},
		{
			name:   "default base",
			params: SearchParams{Origin: "BCN", Destination: "LIS", DepartureDate: "2025-03-01"},
			want:   "https://www.kayak.es/flights/BCN-LIS/2025-03-01?ucs=1993xcp",
		},
		{
			name:   "trailing slash",
			base:   "http://127.0.0.1:8080/",
			params: SearchParams{Origin: "BCN", Destination: "LIS", DepartureDate: "2025-03-01"},
			want:   "http://127.0.0.1:8080/flights/BCN-LIS/2025-03-01?ucs=1993xcp",
		},
		{
			name:   "opaque values are interpolated as given",
			base:   "https://www.kayak.es",
			params: SearchParams{Origin: "mad,tol", Destination: "PAR", DepartureDate: "2025-01-10-flexible"},
			want:   "https://www.kayak.es/flights/mad,tol-PAR/2025-01-10-flexible?ucs=1993xcp",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, BuildURL(tc.base, tc.params))
		})
	}
}

func TestSearchParamsKey(t *testing.T) {
	oneWay := SearchParams{Origin: "MAD", Destination: "BCN", DepartureDate: "2025-01-10"}
	assert.Equal(t, "MAD-BCN/2025-01-10", oneWay.Key())
	assert.False(t, oneWay.RoundTrip())

	roundTrip := oneWay
	roundTrip.ReturnDate = "2025-01-17"
	assert.Equal(t, "MAD-BCN/2025-01-10/2025-01-17", roundTrip.Key())
	assert.True(t, roundTrip.RoundTrip())
}

func TestSearchParamsValidate(t *testing.T) {
	assert.NoError(t, SearchParams{Origin: "MAD", Destination: "BCN", DepartureDate: "2025-01-10"}.Validate())

	err := SearchParams{Origin: "MAD"}.Validate()
	assert.True(t, errors.Is(err, errors.ErrorTypeValidation))
	assert.Contains(t, err.Error(), "destination, departure date")
}
