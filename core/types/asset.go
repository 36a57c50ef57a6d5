package types

import (
	"fmt"
	"strings"
)

// NormalizeAsset canonicalises asset symbols for consistent lookups. Symbols
// are stored uppercase and must not be empty.
func NormalizeAsset(symbol string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return "", fmt.Errorf("asset symbol must not be empty")
	}
	return normalized, nil
}
