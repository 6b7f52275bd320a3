package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadYAMLResolvesEndpoints(t *testing.T) {
	doc, err := Load("testdata/portaldb.yaml")
	require.NoError(t, err)
	assert.Equal(t, "Portal DB", doc.Info.Title)

	ep, ok := doc.Lookup("GET", "/health")
	require.True(t, ok)
	assert.Equal(t, "GET", ep.Method)
	assert.Equal(t, "getHealth", ep.Operation.OperationID)
	assert.Contains(t, ep.Operation.Responses, "200")

	ep, ok = doc.Lookup("post", "/items")
	require.True(t, ok)
	assert.True(t, ep.RequiresBody())

	_, ok = doc.Lookup("PUT", "/items")
	assert.False(t, ok)
}

func TestLookupMatchesTemplatesAndPrefersLiterals(t *testing.T) {
	doc, err := Load("testdata/portaldb.yaml")
	require.NoError(t, err)

	ep, ok := doc.Lookup("GET", "/items/42?select=name")
	require.True(t, ok)
	assert.Equal(t, "/items/{id}", ep.Path)
	assert.False(t, ep.AcceptsBody())

	ep, ok = doc.Lookup("GET", "/items/export")
	require.True(t, ok)
	assert.Equal(t, "/items/export", ep.Path)

	ep, ok = doc.Lookup("delete", "/items/7")
	require.True(t, ok, "upper-case method keys are normalized")
	assert.Equal(t, "deleteItem", ep.Operation.OperationID)

	_, ok = doc.Lookup("GET", "/items/1/extra")
	assert.False(t, ok)
	_, ok = doc.Lookup("GET", "/items//")
	assert.False(t, ok)
}

func TestParseJSONSkipsNonMethodKeys(t *testing.T) {
	doc, err := Load("testdata/portaldb.json")
	require.NoError(t, err)

	eps := doc.Endpoints()
	require.Len(t, eps, 3)
	assert.Equal(t, "/", eps[0].Path)
	assert.Equal(t, "GET", eps[1].Method)
	assert.Equal(t, "POST", eps[2].Method)
	assert.True(t, eps[2].AcceptsBody(), "swagger body parameter counts as a request body")
	assert.False(t, eps[1].AcceptsBody())
	assert.Equal(t, []string{"GET", "POST"}, doc.AllowedMethods("/portal_accounts"))
	assert.True(t, doc.HasPath("/portal_accounts"))
	assert.False(t, doc.HasPath("/nope"))
}

func TestParseWithoutExtensionFallsBack(t *testing.T) {
	doc, err := Parse([]byte(`{"openapi":"3.1.0","paths":{"/x":{"get":{}}}}`), "")
	require.NoError(t, err)
	_, ok := doc.Lookup("GET", "/x")
	assert.True(t, ok)
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"no version":    `{"paths":{"/x":{"get":{}}}}`,
		"no paths":      `{"openapi":"3.0.0","paths":{}}`,
		"relative path": `{"openapi":"3.0.0","paths":{"x":{"get":{}}}}`,
		"not a doc":     `[1,2,3]`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw), ".json")
			assert.Error(t, err)
		})
	}
}

func TestValidateRejectsUnknownMethodOnBuiltDocument(t *testing.T) {
	doc := &Document{
		OpenAPI: "3.0.0",
		Paths:   map[string]PathItem{"/x": {"FETCH": Operation{}}},
	}
	assert.Error(t, doc.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("testdata/missing.yaml")
	assert.Error(t, err)
	_, err = Load("  ")
	assert.Error(t, err)
}
