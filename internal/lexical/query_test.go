package lexical

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexushq/nexus/internal/storage"
	"github.com/nexushq/nexus/pkg/types"
)

func TestEscapeTerm(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "token", `"token"`},
		{"embedded quote", `say "hi"`, `"say ""hi"""`},
		{"operator chars", "a AND b", `"a AND b"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EscapeTerm(tt.in))
		})
	}
}

func TestBuildMatch(t *testing.T) {
	match, err := BuildMatch("parse token")
	require.NoError(t, err)
	assert.Equal(t, `"parse token"`, match)

	match, err = BuildMatch("  single  ")
	require.NoError(t, err)
	assert.Equal(t, `"single"`, match)

	_, err = BuildMatch("   ")
	assert.ErrorIs(t, err, types.ErrInvalidQuery)
}

func TestBuildAndQuery(t *testing.T) {
	match, err := BuildAndQuery([]string{"token", "validate"})
	require.NoError(t, err)
	assert.Equal(t, `"token" AND "validate"`, match)

	match, err = BuildAndQuery([]string{"", "token", " "})
	require.NoError(t, err)
	assert.Equal(t, `"token"`, match)

	_, err = BuildAndQuery(nil)
	assert.ErrorIs(t, err, types.ErrInvalidQuery)
}

func TestBuildOrQuery(t *testing.T) {
	match, err := BuildOrQuery([]string{"login", "logout"})
	require.NoError(t, err)
	assert.Equal(t, `"login" OR "logout"`, match)

	_, err = BuildOrQuery([]string{"", "  "})
	assert.ErrorIs(t, err, types.ErrInvalidQuery)
}

func TestBuildPrefixQuery(t *testing.T) {
	match, err := BuildPrefixQuery("auth")
	require.NoError(t, err)
	assert.Equal(t, `"auth"*`, match)

	_, err = BuildPrefixQuery("")
	assert.ErrorIs(t, err, types.ErrInvalidQuery)
}

type fakeTextSearcher struct {
	gotMatch  string
	gotLimit  int
	gotOffset int
	results   []storage.TextResult
	err       error
}

func (f *fakeTextSearcher) SearchText(_ context.Context, match string, limit, offset int) ([]storage.TextResult, error) {
	f.gotMatch = match
	f.gotLimit = limit
	f.gotOffset = offset
	return f.results, f.err
}

func TestIndexSearch(t *testing.T) {
	fake := &fakeTextSearcher{
		results: []storage.TextResult{
			{ChunkID: 7, Path: "a.go", StartLine: 1, EndLine: 5, Content: "token parser", Score: 3.2},
			{ChunkID: 9, Path: "b.go", StartLine: 10, EndLine: 20, Content: "token cache", Score: 1.1},
		},
	}
	ix := NewIndex(fake)

	hits, err := ix.Search(context.Background(), "token parser", 10, 0)
	require.NoError(t, err)

	assert.Equal(t, `"token parser"`, fake.gotMatch)
	assert.Equal(t, 10, fake.gotLimit)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(7), hits[0].ChunkID)
	assert.Equal(t, types.EngineLexical, hits[0].Engine)
	assert.Equal(t, 3.2, hits[0].Score)
}

func TestIndexSearchInvalidQuery(t *testing.T) {
	ix := NewIndex(&fakeTextSearcher{})
	_, err := ix.Search(context.Background(), "  ", 10, 0)
	assert.ErrorIs(t, err, types.ErrInvalidQuery)
}
