package fare

import (
	"fmt"
	"strconv"

	"sjsage522/farewatch/helpers"
	"sjsage522/farewatch/pkg/errors"
)

// priceIndex selects the second price element on the results page.
// The first one is not the fare we report.
const priceIndex = 1

// ExtractPrice returns the digits of the second text as an integer price
func ExtractPrice(texts []string) (int, error) {
	return extractPrice("", texts)
}

func extractPrice(route string, texts []string) (int, error) {
	if len(texts) <= priceIndex {
		return 0, errors.NewNotFound(route, fmt.Sprintf("less than two price elements found (%d)", len(texts)))
	}

	raw := texts[priceIndex]
	digits := helpers.OnlyDigits(raw)
	if digits == "" {
		return 0, errors.NewParsing(route, fmt.Sprintf("number not found in element text after cleaning: %q", raw), nil)
	}

	price, err := strconv.Atoi(digits)
	if err != nil {
		return 0, errors.NewParsing(route, fmt.Sprintf("price %q out of range", digits), err)
	}
	return price, nil
}
