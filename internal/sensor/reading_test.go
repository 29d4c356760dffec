package sensor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/alecthomas/assert/v2"
)

const fixedBody = `{"temperature": 26.3, "humidity": 55.0}`

func TestEncodeFixedReading(t *testing.T) {
	body, err := Encode(Fixed())
	assert.NoError(t, err)
	assert.Equal(t, fixedBody, string(body))
}

func TestEncodeIsDeterministic(t *testing.T) {
	first, err := Encode(Fixed())
	assert.NoError(t, err)
	for i := 0; i < 10; i++ {
		next, err := Encode(Fixed())
		assert.NoError(t, err)
		assert.True(t, bytes.Equal(first, next))
	}
}

func TestEncodeNumberForms(t *testing.T) {
	tests := []struct {
		name    string
		reading Reading
		want    string
	}{
		{"integral values keep decimal point", Reading{20, 0}, `{"temperature": 20.0, "humidity": 0.0}`},
		{"negative", Reading{-4.5, 99.9}, `{"temperature": -4.5, "humidity": 99.9}`},
		{"shortest round trip", Reading{0.1, 33.333}, `{"temperature": 0.1, "humidity": 33.333}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.reading)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestEncodeRejectsNonFinite(t *testing.T) {
	for _, r := range []Reading{
		{Temperature: math.NaN(), Humidity: 1},
		{Temperature: 1, Humidity: math.Inf(1)},
		{Temperature: math.Inf(-1), Humidity: 1},
	} {
		_, err := Encode(r)
		assert.Error(t, err)
		assert.True(t, errors.Is(err, ErrNonFinite))
	}
}

func TestMarshalJSONUsesEncoder(t *testing.T) {
	body, err := json.Marshal(Fixed())
	assert.NoError(t, err)
	// encoding/json compacts marshaler output, so compare decoded values.
	var decoded map[string]float64
	assert.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, map[string]float64{"temperature": 26.3, "humidity": 55.0}, decoded)
}

func TestStaticProvider(t *testing.T) {
	r, err := Static{}.Current(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, Reading{Temperature: 26.3, Humidity: 55.0}, r)
}

func TestProviderFunc(t *testing.T) {
	want := errors.New("sensor offline")
	p := ProviderFunc(func(context.Context) (Reading, error) { return Reading{}, want })
	_, err := p.Current(context.Background())
	assert.True(t, errors.Is(err, want))
}
