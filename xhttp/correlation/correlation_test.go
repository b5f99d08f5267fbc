package correlation_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trustpass/inspect/xhttp/correlation"
	"github.com/trustpass/inspect/xhttp/header"
)

func TestWithID(t *testing.T) {
	ctx := correlation.WithID(context.Background())
	cid := correlation.ID(ctx)
	require.NotEmpty(t, cid)
	assert.LessOrEqual(t, len(cid), correlation.IDSize)

	// existing ID is preserved
	ctx2 := correlation.WithID(ctx)
	assert.Equal(t, cid, correlation.ID(ctx2))

	detached := correlation.NewFromContext(ctx)
	assert.Equal(t, cid, correlation.ID(detached))
}

func TestNewHandler(t *testing.T) {
	var seen string
	d := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = correlation.ID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	h := correlation.NewHandler(d)

	t.Run("incoming", func(t *testing.T) {
		r, err := http.NewRequest(http.MethodGet, "/v1/status", nil)
		require.NoError(t, err)
		r.Header.Set(header.XCorrelationID, "123456789012345")

		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, "123456789012", seen)
		assert.Equal(t, "123456789012", w.Header().Get(header.XCorrelationID))
	})

	t.Run("generated", func(t *testing.T) {
		r, err := http.NewRequest(http.MethodGet, "/v1/status", nil)
		require.NoError(t, err)

		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, w.Header().Get(header.XCorrelationID))
	})
}
