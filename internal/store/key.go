package store

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sokinpui/gpt2bot.go/internal/kvfile"
	"github.com/sokinpui/gpt2bot.go/model"
)

// Key is one of the closed set of configuration keys. The declaration order
// is the order entries are written to the file.
type Key int

const (
	ModelName Key = iota
	Length
	Temperature
	TopK
	TopP
	IncludePrefix

	numKeys
)

// MaxLength is the largest number of tokens a sample may request.
const MaxLength = 1023

var keyNames = [numKeys]string{
	ModelName:     "model_name",
	Length:        "length",
	Temperature:   "temperature",
	TopK:          "top_k",
	TopP:          "top_p",
	IncludePrefix: "include_prefix",
}

func (k Key) String() string {
	if k < 0 || k >= numKeys {
		return fmt.Sprintf("Key(%d)", int(k))
	}
	return keyNames[k]
}

// Keys returns every key in file order.
func Keys() []Key {
	keys := make([]Key, numKeys)
	for i := range keys {
		keys[i] = Key(i)
	}
	return keys
}

// ParseKey maps a key name to its Key.
func ParseKey(name string) (Key, bool) {
	for i, n := range keyNames {
		if n == name {
			return Key(i), true
		}
	}
	return 0, false
}

// IsValidKey reports whether name is a recognised key.
func IsValidKey(name string) bool {
	_, ok := ParseKey(name)
	return ok
}

// IsValidValue reports whether name is a recognised key and raw parses and
// validates under that key's rule.
func IsValidValue(name, raw string) bool {
	k, ok := ParseKey(name)
	if !ok {
		return false
	}
	var c Configuration
	return c.set(k, raw) == nil
}

func parseInt(raw string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%d out of range [%d, %d]", n, lo, hi)
	}
	return n, nil
}

func parseFloat(raw string, lo, hi float64) (float64, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < lo || f > hi {
		return 0, fmt.Errorf("%s out of range [%g, %g]", raw, lo, hi)
	}
	return f, nil
}

func parseBool(raw string) (bool, error) {
	switch {
	case strings.EqualFold(raw, "true"):
		return true, nil
	case strings.EqualFold(raw, "false"):
		return false, nil
	}
	return false, fmt.Errorf("%q is not True or False", raw)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// set parses raw under k's rule and stores it in c. c is unchanged on error.
func (c *Configuration) set(k Key, raw string) error {
	if !kvfile.Clean(raw) {
		return fmt.Errorf("value must be non-empty and must not contain any of %q", kvfile.Reserved)
	}

	switch k {
	case ModelName:
		if !model.IsValidName(raw) {
			return model.ErrInvalidModelName
		}
		c.ModelName = raw
	case Length:
		n, err := parseInt(raw, 1, MaxLength)
		if err != nil {
			return err
		}
		c.Length = n
	case Temperature:
		f, err := parseFloat(raw, 0, math.MaxFloat64)
		if err != nil {
			return err
		}
		c.Temperature = f
	case TopK:
		n, err := parseInt(raw, 0, math.MaxInt)
		if err != nil {
			return err
		}
		c.TopK = n
	case TopP:
		f, err := parseFloat(raw, 0, 1)
		if err != nil {
			return err
		}
		c.TopP = f
	case IncludePrefix:
		b, err := parseBool(raw)
		if err != nil {
			return err
		}
		c.IncludePrefix = b
	default:
		return fmt.Errorf("unknown key %v", k)
	}
	return nil
}
