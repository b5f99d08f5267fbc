package gateway_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trustpass/inspect/pkg/gateway"
	"github.com/trustpass/inspect/pkg/revocation"
	"github.com/trustpass/inspect/xhttp/header"
	"github.com/trustpass/inspect/xhttp/httperror"
	"github.com/trustpass/inspect/xhttp/marshal"
)

func newClient(t *testing.T, h http.Handler) (*gateway.Client, func()) {
	t.Helper()
	srv := httptest.NewServer(h)
	c, err := gateway.New(&gateway.Config{
		Hosts:          []string{srv.URL},
		RequestTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return c, srv.Close
}

func TestNewRequiresHosts(t *testing.T) {
	_, err := gateway.New(nil)
	assert.Error(t, err)
	_, err = gateway.New(&gateway.Config{})
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	c, closer := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/endpoints/status", r.URL.Path)
		marshal.WriteJSON(w, r, []string{"kid1", "kid2"})
	}))
	defer closer()

	kids, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"kid1", "kid2"}, kids)
}

func TestUpdateStream(t *testing.T) {
	keys := map[string]string{
		"": "key-one", "t1": "key-two",
	}
	next := map[string]string{
		"": "t1", "t1": "t2",
	}
	kids := map[string]string{
		"": "kidA", "t1": "kidB",
	}

	c, closer := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(header.XResumeToken)
		key, ok := keys[token]
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set(header.XKID, kids[token])
		w.Header().Set(header.XResumeToken, next[token])
		_, _ = w.Write([]byte(key))
	}))
	defer closer()

	ctx := context.Background()

	up, err := c.Update(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, up)
	assert.Equal(t, "kidA", up.KID)
	assert.Equal(t, "key-one", up.EncodedPublicKey)
	assert.Equal(t, "t1", up.ResumeToken)

	up, err = c.Update(ctx, up.ResumeToken)
	require.NoError(t, err)
	require.NotNil(t, up)
	assert.Equal(t, "key-two", up.EncodedPublicKey)

	// exhausted
	up, err = c.Update(ctx, up.ResumeToken)
	require.NoError(t, err)
	assert.Nil(t, up)
}

func TestUpdateMissingHeaders(t *testing.T) {
	c, closer := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("key"))
	}))
	defer closer()

	_, err := c.Update(context.Background(), "")
	require.Error(t, err)
	var he *httperror.Error
	require.ErrorAs(t, err, &he)
	assert.Equal(t, httperror.CodeParsing, he.Code)
}

func TestRules(t *testing.T) {
	ruleBody := []byte(`{"Identifier":"GR-DE-0001","Logic":{}}`)
	c, closer := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/endpoints/rules":
			marshal.WriteJSON(w, r, []gateway.RuleIdentifier{
				{Identifier: "GR-DE-0001", Version: "1.0.0", Country: "DE", Hash: "abc1"},
			})
		case "/endpoints/rules/DE/abc1":
			_, _ = w.Write(ruleBody)
		default:
			marshal.WriteJSON(w, r, httperror.NotFound("%s", r.URL.Path))
		}
	}))
	defer closer()

	ctx := context.Background()
	list, err := c.Rules(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "DE", list[0].Country)

	raw, err := c.Rule(ctx, list[0].Country, list[0].Hash)
	require.NoError(t, err)
	assert.Equal(t, ruleBody, raw)

	_, err = c.Rule(ctx, "FR", "missing")
	assert.True(t, httperror.IsNotFound(err))
}

func TestValueSets(t *testing.T) {
	vsBody := []byte(`{"valueSetId":"vaccines","valueSetValues":{}}`)
	c, closer := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/endpoints/valuesets":
			marshal.WriteJSON(w, r, []gateway.ValueSetIdentifier{{ID: "vaccines", Hash: "h1"}})
		case "/endpoints/valuesets/h1":
			_, _ = w.Write(vsBody)
		default:
			marshal.WriteJSON(w, r, httperror.NotFound("%s", r.URL.Path))
		}
	}))
	defer closer()

	ctx := context.Background()
	list, err := c.ValueSets(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	raw, err := c.ValueSet(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, vsBody, raw)
}

func TestRevocationDescent(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03}
	c, closer := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/lists":
			marshal.WriteJSON(w, r, []revocation.Revocation{
				{KID: "kid1", Mode: revocation.ModePoint, HashTypes: []string{"SIGNATURE"}},
			})
		case "/lists/kid1/partitions":
			marshal.WriteJSON(w, r, []revocation.Partition{{KID: "kid1", ID: "p1"}})
		case "/lists/kid1/partitions/p1":
			marshal.WriteJSON(w, r, revocation.Partition{KID: "kid1", ID: "p1"})
		case "/lists/kid1/partitions/p1/chunks/c1/slices":
			marshal.WriteJSON(w, r, []revocation.Slice{{HashID: "s1", Type: "BLOOMFILTER"}})
		case "/lists/kid1/partitions/p1/chunks/c1/slices/s1":
			w.Header().Set(header.ContentType, header.ApplicationOctetStream)
			_, _ = w.Write(payload)
		default:
			marshal.WriteJSON(w, r, httperror.NotFound("%s", r.URL.Path))
		}
	}))
	defer closer()

	ctx := context.Background()

	lists, err := c.RevocationLists(ctx)
	require.NoError(t, err)
	require.Len(t, lists, 1)
	assert.Equal(t, revocation.ModePoint, lists[0].Mode)

	parts, err := c.Partitions(ctx, "kid1")
	require.NoError(t, err)
	require.Len(t, parts, 1)

	part, err := c.Partition(ctx, "kid1", "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", part.ID)

	slices, err := c.ChunkSlices(ctx, "kid1", "p1", "c1")
	require.NoError(t, err)
	require.Len(t, slices, 1)

	data, err := c.Slice(ctx, "kid1", "p1", "c1", "s1")
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	_, err = c.Partitions(ctx, "unknown")
	assert.True(t, httperror.IsNotFound(err))
}

func TestLookup(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	token, err := gateway.NewLookupToken(key, jose.ES256, []string{"aabb", "ccdd"})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	c, closer := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/revocation/lookup", r.URL.Path)
		var tokens []string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&tokens))
		require.Len(t, tokens, 1)

		obj, err := jose.ParseSigned(tokens[0])
		require.NoError(t, err)
		payload, err := obj.Verify(&key.PublicKey)
		require.NoError(t, err)

		var hashes []string
		require.NoError(t, json.Unmarshal(payload, &hashes))
		assert.Equal(t, []string{"aabb", "ccdd"}, hashes)

		marshal.WriteJSON(w, r, []string{"aabb"})
	}))
	defer closer()

	revoked, err := c.Lookup(context.Background(), []string{token})
	require.NoError(t, err)
	assert.Equal(t, []string{"aabb"}, revoked)
}
