package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type doc struct {
	ID   string `json:"_id,omitempty"`
	Name string `json:"name"`
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, func() string { return "tok-123" }, 5*time.Second)
	require.NoError(t, err)
	return c
}

func TestService_FindSendsQueryAndBearer(t *testing.T) {
	var gotAuth, gotQuery string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		require.Equal(t, "/artifacts", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]doc{{ID: "1", Name: "a"}})
	}))

	var out []doc
	q := url.Values{}
	q.Set("userId", "u1")
	require.NoError(t, c.Service("artifacts").Find(context.Background(), q, &out))

	require.Equal(t, "Bearer tok-123", gotAuth)
	require.Equal(t, "userId=u1", gotQuery)
	require.Len(t, out, 1)
}

func TestService_CreateDecodesServerDocument(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var in doc
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		in.ID = "server-id"
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(in)
	}))

	var out doc
	require.NoError(t, c.Service("artifacts").Create(context.Background(), doc{Name: "new"}, &out))
	require.Equal(t, "server-id", out.ID)
}

func TestService_UpdatePatchRemoveVerbs(t *testing.T) {
	var methods []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method+" "+r.URL.Path)
		_, _ = w.Write([]byte(`{}`))
	}))

	ctx := context.Background()
	svc := c.Service("users")
	require.NoError(t, svc.Update(ctx, "u1", doc{}, nil))
	require.NoError(t, svc.Patch(ctx, "u1", map[string]any{"name": "x"}, nil))
	require.NoError(t, svc.Remove(ctx, "u1"))

	require.Equal(t, []string{
		"PUT /users/u1",
		"PATCH /users/u1",
		"DELETE /users/u1",
	}, methods)
}

func TestService_ErrorIsStructured(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"nope"}`, http.StatusForbidden)
	}))

	err := c.Service("artifacts").Get(context.Background(), "42", &doc{})
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	require.Equal(t, http.StatusForbidden, reqErr.Status)
	require.True(t, reqErr.Unauthorized())
	require.Contains(t, reqErr.Body, "nope")

	// the error must survive serialization (queue items store it)
	data, merr := json.Marshal(reqErr)
	require.NoError(t, merr)
	require.Contains(t, string(data), "403")
}

func TestClient_Health(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	require.NoError(t, c.Health(context.Background()))
}

func TestClient_RequestTimeout(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	c.timeout = 50 * time.Millisecond

	err := c.Health(context.Background())
	require.Error(t, err)
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
}
