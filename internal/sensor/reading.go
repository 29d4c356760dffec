// Package sensor defines the sensor reading served by sensord and its
// byte-exact JSON encoding.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
)

const (
	// FixedTemperature and FixedHumidity are the values every reading carries.
	FixedTemperature = 26.3
	FixedHumidity    = 55.0
)

// ErrNonFinite is returned when a reading holds NaN or ±Inf, which JSON
// cannot represent.
var ErrNonFinite = errors.New("sensor: non-finite value")

// Reading is a single temperature/humidity sample. It has no identity and
// is discarded after it has been encoded.
type Reading struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

// Fixed returns the hardcoded reading.
func Fixed() Reading {
	return Reading{Temperature: FixedTemperature, Humidity: FixedHumidity}
}

// MarshalJSON implements json.Marshaler using Encode.
func (r Reading) MarshalJSON() ([]byte, error) {
	return Encode(r)
}

// Encode renders r as {"temperature": T, "humidity": H}. Key order is fixed,
// separators carry a single space and integral values keep a ".0" suffix, so
// the fixed reading encodes to exactly {"temperature": 26.3, "humidity": 55.0}.
func Encode(r Reading) ([]byte, error) {
	buf := make([]byte, 0, 48)
	buf = append(buf, `{"temperature": `...)
	buf, err := appendFloat(buf, r.Temperature)
	if err != nil {
		return nil, fmt.Errorf("encode temperature: %w", err)
	}
	buf = append(buf, `, "humidity": `...)
	buf, err = appendFloat(buf, r.Humidity)
	if err != nil {
		return nil, fmt.Errorf("encode humidity: %w", err)
	}
	return append(buf, '}'), nil
}

func appendFloat(buf []byte, v float64) ([]byte, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return buf, ErrNonFinite
	}
	start := len(buf)
	buf = strconv.AppendFloat(buf, v, 'f', -1, 64)
	for _, c := range buf[start:] {
		if c == '.' {
			return buf, nil
		}
	}
	return append(buf, ".0"...), nil
}

// Provider supplies the current reading.
type Provider interface {
	Current(ctx context.Context) (Reading, error)
}

// ProviderFunc adapts a function to a Provider.
type ProviderFunc func(ctx context.Context) (Reading, error)

// Current calls f(ctx).
func (f ProviderFunc) Current(ctx context.Context) (Reading, error) {
	return f(ctx)
}

// Static always returns Fixed.
type Static struct{}

// Current returns a freshly constructed fixed reading.
func (Static) Current(context.Context) (Reading, error) {
	return Fixed(), nil
}
