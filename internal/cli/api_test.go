package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/denkmit/denkmit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var ctx = context.Background()

func newTestDB(t *testing.T, cfg denkmit.Config) *denkmit.DB[[]byte] {
	if cfg.Persist == nil {
		cfg.Persist = denkmit.NewInMemoryStore()
	}
	db, err := denkmit.Create[[]byte](ctx, cfg, denkmit.BytesCodec{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func do(t *testing.T, srv *httptest.Server, method, path string, body []byte) (*http.Response, []byte) {
	req, err := http.NewRequest(method, srv.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

func TestAPI(t *testing.T) {
	t.Parallel()
	db := newTestDB(t, denkmit.Config{})
	srv := httptest.NewServer(newAPI(db, zap.NewNop(), nil))
	defer srv.Close()

	resp, _ := do(t, srv, http.MethodGet, "/kv/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodGet, "/head", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodPut, "/kv/greeting", []byte("hello"))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = do(t, srv, http.MethodPut, "/kv/other", []byte("x"))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body := do(t, srv, http.MethodGet, "/kv/greeting", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello", string(body))

	resp, body = do(t, srv, http.MethodGet, "/kv", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var items []itemResponse
	require.NoError(t, json.Unmarshal(body, &items))
	require.Len(t, items, 2)
	assert.Equal(t, "greeting", items[0].Key)
	assert.Equal(t, "other", items[1].Key)

	resp, body = do(t, srv, http.MethodGet, "/head", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var head headResponse
	require.NoError(t, json.Unmarshal(body, &head))
	assert.Equal(t, 2, head.Size)
	assert.Equal(t, db.Address(), head.Address)
	root, err := db.Root()
	require.NoError(t, err)
	assert.Equal(t, root.String(), head.Root)

	resp, _ = do(t, srv, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPISync(t *testing.T) {
	t.Parallel()
	store := denkmit.NewInMemoryStore()
	a := newTestDB(t, denkmit.Config{Persist: store})
	require.NoError(t, a.Set(ctx, "k", []byte("v")))
	head, err := a.CreateHead(ctx)
	require.NoError(t, err)

	b, err := denkmit.Open[[]byte](ctx, a.Address(), denkmit.Config{Persist: store}, denkmit.BytesCodec{})
	require.NoError(t, err)
	defer b.Close()
	srv := httptest.NewServer(newAPI(b, zap.NewNop(), nil))
	defer srv.Close()

	resp, _ := do(t, srv, http.MethodPost, "/sync/not-base58-0OIl", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodPost, "/sync/"+head.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, body := do(t, srv, http.MethodGet, "/kv/k", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "v", string(body))
}

func TestAPIRejected(t *testing.T) {
	t.Parallel()
	db := newTestDB(t, denkmit.Config{
		Consensus: denkmit.ConsensusFunc(func(context.Context, denkmit.CheckPayload) (bool, error) {
			return false, nil
		}),
	})
	srv := httptest.NewServer(newAPI(db, zap.NewNop(), nil))
	defer srv.Close()

	resp, _ := do(t, srv, http.MethodPut, "/kv/k", []byte("v"))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
