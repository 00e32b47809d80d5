package validators

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/supplytrace-backend/pkg/errors"
)

func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.Validation(key + " must be numeric")
	}
	if value < min || value > max {
		return 0, pkgerrors.Validation(fmt.Sprintf("%s must be between %d and %d", key, min, max))
	}
	return value, nil
}

// ParseOptionalFloat parses a form field that may be blank. A value that does
// not parse, or parses to NaN or an infinity, is reported against field.
func ParseOptionalFloat(field, raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, fmt.Errorf("%s must be a number", field)
	}
	return &value, nil
}
