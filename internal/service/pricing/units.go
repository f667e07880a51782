package pricing

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	units "github.com/docker/go-units"
)

var errEmptyQuantity = errors.New("empty quantity")

const bytesPerGB = float64(units.GiB)

// ParseCPU converts strings such as "1 vCPU", "0.5", "2 cores" or "500m" to cores.
func ParseCPU(value string) (float64, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return 0, errEmptyQuantity
	}
	num, unit := splitQuantity(v)
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("parse cpu %q: %w", value, err)
	}
	if err := checkQuantity(n); err != nil {
		return 0, fmt.Errorf("parse cpu %q: %w", value, err)
	}
	switch unit {
	case "", "vcpu", "vcpus", "cpu", "cpus", "core", "cores":
		return n, nil
	case "m", "millicores":
		return n / 1000, nil
	}
	return 0, fmt.Errorf("parse cpu %q: unknown unit %q", value, unit)
}

// ParseMemoryGB converts strings such as "512MB", "2GB" or "2 GiB" to gigabytes.
// A bare number is taken as gigabytes. Units are binary.
func ParseMemoryGB(value string) (float64, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0, errEmptyQuantity
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		if err := checkQuantity(n); err != nil {
			return 0, fmt.Errorf("parse memory %q: %w", value, err)
		}
		return n, nil
	}
	size, err := units.RAMInBytes(v)
	if err != nil {
		return 0, fmt.Errorf("parse memory %q: %w", value, err)
	}
	return float64(size) / bytesPerGB, nil
}

// checkQuantity rejects values ParseFloat accepts but no size can be: NaN,
// infinities and negatives.
func checkQuantity(n float64) error {
	switch {
	case math.IsNaN(n), math.IsInf(n, 0):
		return errors.New("not a finite number")
	case n < 0:
		return errors.New("negative value")
	}
	return nil
}

// splitQuantity separates the leading number from a trailing unit token.
func splitQuantity(v string) (string, string) {
	i := 0
	for i < len(v) && (v[i] == '.' || v[i] == '-' || (v[i] >= '0' && v[i] <= '9')) {
		i++
	}
	return v[:i], strings.TrimSpace(v[i:])
}
