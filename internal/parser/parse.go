package parser

import (
	"fmt"
	"time"

	"github.com/bobmcallan/dsefeed/internal/models"
)

// Parse dispatches payload to the parser of view. The DSEX records are
// stamped with the current time; callers that know the fetch time should
// use ParseDsex directly.
func Parse(view models.View, payload []byte) (any, error) {
	switch view {
	case models.ViewLatest:
		return ParseLatest(payload)
	case models.ViewDsex:
		return ParseDsex(payload, time.Now().UTC())
	case models.ViewTop30:
		return ParseTop30(payload)
	case models.ViewHistorical:
		return ParseHistorical(payload)
	default:
		return nil, fmt.Errorf("no parser for view %q", view)
	}
}

// ParseAs runs Parse and asserts the record type of view.
func ParseAs[T any](view models.View, payload []byte) ([]T, error) {
	out, err := Parse(view, payload)
	if err != nil {
		return nil, err
	}
	records, ok := out.([]T)
	if !ok {
		return nil, fmt.Errorf("parser for view %q returned %T", view, out)
	}
	return records, nil
}
