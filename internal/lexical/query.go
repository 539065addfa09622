package lexical

import (
	"fmt"
	"strings"

	"github.com/nexushq/nexus/pkg/types"
)

// EscapeTerm quotes a term for FTS5 MATCH syntax. Embedded double
// quotes are doubled per the FTS5 string rules.
func EscapeTerm(term string) string {
	return `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
}

// BuildMatch converts a raw user query into an FTS5 MATCH expression.
// Queries containing whitespace become a single phrase so operator
// characters in user input cannot change query semantics.
func BuildMatch(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("build match: %w", types.ErrInvalidQuery)
	}
	return EscapeTerm(trimmed), nil
}

// BuildAndQuery joins terms so that every term must appear.
func BuildAndQuery(terms []string) (string, error) {
	return joinTerms(terms, " AND ")
}

// BuildOrQuery joins terms so that any term may appear.
func BuildOrQuery(terms []string) (string, error) {
	return joinTerms(terms, " OR ")
}

// BuildPrefixQuery matches any term starting with the given prefix.
func BuildPrefixQuery(prefix string) (string, error) {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		return "", fmt.Errorf("build prefix query: %w", types.ErrInvalidQuery)
	}
	return EscapeTerm(trimmed) + "*", nil
}

func joinTerms(terms []string, op string) (string, error) {
	escaped := make([]string, 0, len(terms))
	for _, term := range terms {
		trimmed := strings.TrimSpace(term)
		if trimmed == "" {
			continue
		}
		escaped = append(escaped, EscapeTerm(trimmed))
	}
	if len(escaped) == 0 {
		return "", fmt.Errorf("join terms: %w", types.ErrInvalidQuery)
	}
	return strings.Join(escaped, op), nil
}
