package enums

import (
	"fmt"
	"slices"
)

// values is the closed set of a string enum, in declaration order.
type values[T ~string] []T

func (v values[T]) has(candidate T) bool {
	return slices.Contains(v, candidate)
}

// parse matches raw exactly; kind names the enum in the error.
func (v values[T]) parse(kind, raw string) (T, error) {
	if candidate := T(raw); v.has(candidate) {
		return candidate, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, raw)
}
