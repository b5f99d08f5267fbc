package gateway

import (
	"context"
	"fmt"
)

// RuleIdentifier is an entry of the rules manifest: the gateway
// announces each business rule by its country and content hash, and
// the body is fetched separately.
type RuleIdentifier struct {
	Identifier string `json:"identifier"`
	Version    string `json:"version"`
	Country    string `json:"country"`
	Hash       string `json:"hash"`
}

// ValueSetIdentifier is an entry of the value sets manifest.
type ValueSetIdentifier struct {
	ID   string `json:"id"`
	Hash string `json:"hash"`
}

// Rules returns the manifest of published business rules.
func (c *Client) Rules(ctx context.Context) ([]RuleIdentifier, error) {
	var list []RuleIdentifier
	if err := c.get(ctx, uriRules, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Rule fetches the raw body of a single rule. The caller is expected
// to recompute the content hash over the returned bytes.
func (c *Client) Rule(ctx context.Context, country, hash string) ([]byte, error) {
	return c.raw(ctx, fmt.Sprintf("%s/%s/%s", uriRules, escape(country), escape(hash)))
}

// ValueSets returns the manifest of published value sets.
func (c *Client) ValueSets(ctx context.Context) ([]ValueSetIdentifier, error) {
	var list []ValueSetIdentifier
	if err := c.get(ctx, uriValueSets, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// ValueSet fetches the raw body of a single value set. The caller is
// expected to recompute the content hash over the returned bytes.
func (c *Client) ValueSet(ctx context.Context, hash string) ([]byte, error) {
	return c.raw(ctx, fmt.Sprintf("%s/%s", uriValueSets, escape(hash)))
}
