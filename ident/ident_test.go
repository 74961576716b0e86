package ident

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseQualifiedKeyDotForm(t *testing.T) {
	t.Parallel()
	got := ParseQualifiedKey("web.search")
	assert.Equal(t, QualifiedKey{Group: "web", Name: "search"}, got)
}

func TestParseQualifiedKeyUnderscoreForm(t *testing.T) {
	t.Parallel()
	got := ParseQualifiedKey("web_search")
	assert.Equal(t, QualifiedKey{Group: "web", Name: "search"}, got)
}

func TestParseQualifiedKeyBareName(t *testing.T) {
	t.Parallel()
	got := ParseQualifiedKey("search")
	assert.Equal(t, QualifiedKey{Name: "search"}, got)
}

func TestParseQualifiedKeyPrefersDotOverUnderscore(t *testing.T) {
	t.Parallel()
	got := ParseQualifiedKey("web.search_engine")
	assert.Equal(t, QualifiedKey{Group: "web", Name: "search_engine"}, got)
}

func TestDotFormAndUnderscoreForm(t *testing.T) {
	t.Parallel()

	grouped := QualifiedKey{Group: "web", Name: "search"}
	assert.Equal(t, "web.search", grouped.DotForm())
	assert.Equal(t, "web_search", grouped.UnderscoreForm())

	bare := QualifiedKey{Name: "search"}
	assert.Equal(t, "search", bare.DotForm())
	assert.Equal(t, "search", bare.UnderscoreForm())
}
