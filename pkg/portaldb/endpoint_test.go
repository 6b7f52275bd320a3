package portaldb

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	createItem = NewEndpoint[item, item](http.MethodPost, "/items")
	getItem    = NewEndpoint[NoBody, item](http.MethodGet, "/items/{id}")
)

func TestCallSendsTypedBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"name":"x"}`, string(raw))
		writeJSON(w, http.StatusCreated, `{"id":7,"name":"x"}`)
	})

	resp, err := Call(context.Background(), c, createItem, &item{Name: "x"})
	require.NoError(t, err)
	require.NotNil(t, resp.Body)
	assert.Equal(t, item{ID: 7, Name: "x"}, *resp.Body)
}

func TestCallValidatesStructTags(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) { hits.Add(1) })

	_, err := Call(context.Background(), c, createItem, &item{})
	assert.ErrorIs(t, err, ErrInvalidBody)
	assert.Zero(t, hits.Load())
}

func TestCallWithNoBodyAndPathParams(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/items/3", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		assert.Empty(t, raw)
		writeJSON(w, http.StatusOK, `{"id":3,"name":"z"}`)
	})

	resp, err := Call(context.Background(), c, getItem, &NoBody{}, WithPathParams(map[string]string{"id": "3"}))
	require.NoError(t, err)
	require.NotNil(t, resp.Body)
	assert.Equal(t, 3, resp.Body.ID)

	resp, err = Call(context.Background(), c, getItem, nil, WithPathParams(map[string]string{"id": "3"}))
	require.NoError(t, err)
	assert.Equal(t, "z", resp.Body.Name)
}

func TestValidateBodySkipsNonStructs(t *testing.T) {
	assert.NoError(t, validateBody(map[string]string{}))
	assert.NoError(t, validateBody((*item)(nil)))
	assert.Error(t, validateBody(&item{}))
}

func TestErrorDetail(t *testing.T) {
	cases := []struct {
		name, ct, body, want string
	}{
		{"postgrest message", "application/json", `{"code":"42P01","message":"relation does not exist"}`, "relation does not exist"},
		{"json without content type", "", `{"hint":"try again"}`, "try again"},
		{"html title", "text/html", `<html><title> Down </title></html>`, "Down"},
		{"html h1 fallback", "text/html", `<html><body><h1>Bad</h1></body></html>`, "Bad"},
		{"plain text", "text/plain", `nope`, ""},
		{"empty", "application/json", ``, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, errorDetail(tc.ct, []byte(tc.body)))
		})
	}
}
