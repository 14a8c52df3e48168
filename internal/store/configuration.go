package store

import (
	"strconv"

	"github.com/sokinpui/gpt2bot.go/internal/kvfile"
)

// Configuration is the full set of generation parameters, one typed field
// per Key. It is a value type: copies never alias the store's state.
type Configuration struct {
	ModelName     string  `json:"model_name" yaml:"model_name"`
	Length        int     `json:"length" yaml:"length"`
	Temperature   float64 `json:"temperature" yaml:"temperature"`
	TopK          int     `json:"top_k" yaml:"top_k"`
	TopP          float64 `json:"top_p" yaml:"top_p"`
	IncludePrefix bool    `json:"include_prefix" yaml:"include_prefix"`
}

// Defaults returns the built-in configuration.
func Defaults() Configuration {
	return Configuration{
		ModelName:     "124M",
		Length:        100,
		Temperature:   0.7,
		TopK:          0, // 0 means unlimited
		TopP:          0.9,
		IncludePrefix: true,
	}
}

// Get returns the serialized value of k.
func (c Configuration) Get(k Key) string {
	switch k {
	case ModelName:
		return c.ModelName
	case Length:
		return strconv.Itoa(c.Length)
	case Temperature:
		return formatFloat(c.Temperature)
	case TopK:
		return strconv.Itoa(c.TopK)
	case TopP:
		return formatFloat(c.TopP)
	case IncludePrefix:
		return formatBool(c.IncludePrefix)
	}
	return ""
}

// Entries returns one pair per key in file order.
func (c Configuration) Entries() []kvfile.Pair {
	pairs := make([]kvfile.Pair, 0, numKeys)
	for _, k := range Keys() {
		pairs = append(pairs, kvfile.Pair{Key: k.String(), Value: c.Get(k)})
	}
	return pairs
}

// Map returns the entries keyed by name.
func (c Configuration) Map() map[string]string {
	m := make(map[string]string, numKeys)
	for _, k := range Keys() {
		m[k.String()] = c.Get(k)
	}
	return m
}

// Validate checks every entry against its key's rule.
func (c Configuration) Validate() error {
	var errs []error
	var scratch Configuration
	for _, k := range Keys() {
		raw := c.Get(k)
		if err := scratch.set(k, raw); err != nil {
			errs = append(errs, &ValueError{Key: k.String(), Raw: raw, Reason: err})
		}
	}
	if len(errs) > 0 {
		return &BatchError{Errs: errs}
	}
	return nil
}

// String renders the configuration in file format.
func (c Configuration) String() string {
	return kvfile.Format(c.Entries())
}
