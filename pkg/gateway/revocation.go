package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-jose/go-jose/v3"
	"github.com/trustpass/inspect/pkg/revocation"
	"github.com/trustpass/inspect/xhttp/httperror"
)

// RevocationLists returns the revocation list descriptors for all
// signer keys known to the gateway.
func (c *Client) RevocationLists(ctx context.Context) ([]revocation.Revocation, error) {
	var list []revocation.Revocation
	if err := c.get(ctx, uriLists, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Partitions returns all partitions of the revocation list for kid.
func (c *Client) Partitions(ctx context.Context, kid string) ([]revocation.Partition, error) {
	var list []revocation.Partition
	path := fmt.Sprintf("%s/%s/partitions", uriLists, escape(kid))
	if err := c.get(ctx, path, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Partition returns a single partition of the revocation list for kid.
func (c *Client) Partition(ctx context.Context, kid, id string) (*revocation.Partition, error) {
	var p revocation.Partition
	path := fmt.Sprintf("%s/%s/partitions/%s", uriLists, escape(kid), escape(id))
	if err := c.get(ctx, path, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ChunkSlices returns slice descriptors of a single chunk.
func (c *Client) ChunkSlices(ctx context.Context, kid, id, cid string) ([]revocation.Slice, error) {
	var list []revocation.Slice
	path := fmt.Sprintf("%s/%s/partitions/%s/chunks/%s/slices", uriLists, escape(kid), escape(id), escape(cid))
	if err := c.get(ctx, path, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Slice fetches the binary filter payload of a single slice.
func (c *Client) Slice(ctx context.Context, kid, id, cid, hashID string) ([]byte, error) {
	path := fmt.Sprintf("%s/%s/partitions/%s/chunks/%s/slices/%s",
		uriLists, escape(kid), escape(id), escape(cid), escape(hashID))
	return c.raw(ctx, path)
}

// NewLookupToken signs the certificate hashes into a compact JWS,
// proving to the gateway that the caller holds the certificates it
// asks about.
func NewLookupToken(key interface{}, alg jose.SignatureAlgorithm, hashes []string) (string, error) {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: alg, Key: key}, nil)
	if err != nil {
		return "", httperror.TokenError("unable to create signer").WithCause(err)
	}
	payload, err := json.Marshal(hashes)
	if err != nil {
		return "", httperror.TokenError("unable to encode hashes").WithCause(err)
	}
	obj, err := signer.Sign(payload)
	if err != nil {
		return "", httperror.TokenError("unable to sign lookup token").WithCause(err)
	}
	token, err := obj.CompactSerialize()
	if err != nil {
		return "", httperror.TokenError("unable to serialize lookup token").WithCause(err)
	}
	return token, nil
}

// Lookup posts signed lookup tokens for held certificates and returns
// the hash prefixes the gateway reports as revoked.
func (c *Client) Lookup(ctx context.Context, tokens []string) ([]string, error) {
	var revoked []string
	_, sc, err := c.conn.Request(ctx, http.MethodPost, c.hosts(), uriLookup, tokens, &revoked)
	if err != nil {
		return nil, c.mapError(err, sc, uriLookup)
	}
	return revoked, nil
}
