package domain

import (
	"fmt"
	"strings"
)

const maxSymbolLength = 16

// NormalizeSymbol upper-cases a ticker and checks it only contains
// characters that are safe inside a REST path and a topic name.
func NormalizeSymbol(s string) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(s))
	if symbol == "" {
		return "", NewValidationError("symbol", "must not be empty")
	}
	if len(symbol) > maxSymbolLength {
		return "", NewValidationError("symbol", fmt.Sprintf("%q is longer than %d characters", s, maxSymbolLength))
	}
	for _, r := range symbol {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '.' && r != '-' && r != '_' {
			return "", NewValidationError("symbol", fmt.Sprintf("%q contains %q", s, r))
		}
	}
	return symbol, nil
}

// ParseSymbolList splits a comma separated list, dropping blanks and duplicates.
func ParseSymbolList(s string) ([]string, error) {
	seen := make(map[string]struct{})
	result := []string{}
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		symbol, err := NormalizeSymbol(part)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[symbol]; ok {
			continue
		}
		seen[symbol] = struct{}{}
		result = append(result, symbol)
	}
	return result, nil
}
