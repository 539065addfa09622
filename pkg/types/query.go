package types

import "fmt"

// SearchMode selects the retrieval strategy for a query.
type SearchMode string

const (
	ModeLexical  SearchMode = "lexical"  // BM25 token ranking only
	ModeSemantic SearchMode = "semantic" // vector similarity only
	ModeHybrid   SearchMode = "hybrid"   // weighted fusion of both
)

// ParseSearchMode validates a mode string, defaulting empty input to hybrid.
func ParseSearchMode(s string) (SearchMode, error) {
	switch SearchMode(s) {
	case ModeLexical, ModeSemantic, ModeHybrid:
		return SearchMode(s), nil
	case "":
		return ModeHybrid, nil
	default:
		return "", fmt.Errorf("unsupported search mode: %s", s)
	}
}
