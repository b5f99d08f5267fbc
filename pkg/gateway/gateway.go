// Package gateway provides a thin typed client for the certificate
// gateway: signer key updates, business rules, value sets, country
// lists and revocation data.
//
// The client never interprets domain semantics beyond transport
// decoding; callers own caching, diffing and persistence.
package gateway

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/effective-security/xlog"
	"github.com/pkg/errors"
	"github.com/trustpass/inspect/pkg/retriable"
	"github.com/trustpass/inspect/pkg/tlsconfig"
	"github.com/trustpass/inspect/xhttp/header"
	"github.com/trustpass/inspect/xhttp/httperror"
)

var logger = xlog.NewPackageLogger("github.com/trustpass/inspect/pkg", "gateway")

const (
	uriStatus      = "/endpoints/status"
	uriUpdate      = "/endpoints/update"
	uriCountryList = "/endpoints/countryList"
	uriRules       = "/endpoints/rules"
	uriValueSets   = "/endpoints/valuesets"
	uriLists       = "/lists"
	uriLookup      = "/revocation/lookup"
)

// DefaultRequestTimeout bounds gateway calls when the configuration
// does not set one. Every call carries a deadline: a hung gateway must
// never stall a sync pass.
const DefaultRequestTimeout = 30 * time.Second

// Config provides configuration for the gateway client.
type Config struct {
	// Hosts specifies the gateway hosts, tried in order until one succeeds.
	Hosts []string `json:"hosts" yaml:"hosts"`

	// RequestTimeout bounds every call to the gateway.
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`

	// TLS configures mutual TLS towards the gateway.
	TLS *tlsconfig.ClientConfig `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// Client provides access to the gateway endpoints.
type Client struct {
	conn     retriable.GenericHTTP
	cfg      Config
	reloader *tlsconfig.KeypairReloader
}

// New creates a gateway client from the given configuration.
func New(cfg *Config) (*Client, error) {
	if cfg == nil || len(cfg.Hosts) == 0 {
		return nil, errors.Errorf("hosts are required in gateway config")
	}
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}
	opts := []retriable.ClientOption{
		retriable.WithName("gateway"),
		retriable.WithHosts(cfg.Hosts),
		retriable.WithTimeout(timeout),
	}

	tlsCfg, reloader, err := tlsconfig.NewClientTLS(cfg.TLS)
	if err != nil {
		return nil, err
	}
	if tlsCfg != nil {
		opts = append(opts, retriable.WithTLS(tlsCfg))
	}

	return &Client{
		conn:     retriable.New(opts...),
		cfg:      *cfg,
		reloader: reloader,
	}, nil
}

// Close releases the TLS keypair reloader, if one was configured.
func (c *Client) Close() error {
	return c.reloader.Close()
}

// NewWithHTTP creates a gateway client over the supplied HTTP implementation.
func NewWithHTTP(conn retriable.GenericHTTP, cfg *Config) *Client {
	c := &Client{conn: conn}
	if cfg != nil {
		c.cfg = *cfg
	}
	return c
}

// KeyUpdate is a single item of the incremental signer key stream.
type KeyUpdate struct {
	// KID identifies the signer key, base64 encoded.
	KID string
	// EncodedPublicKey is the key material as served by the gateway.
	EncodedPublicKey string
	// ResumeToken is the cursor to request the next item.
	ResumeToken string
}

// Status returns the list of KIDs the gateway currently trusts.
func (c *Client) Status(ctx context.Context) ([]string, error) {
	var kids []string
	if err := c.get(ctx, uriStatus, &kids); err != nil {
		return nil, err
	}
	return kids, nil
}

// Update pulls the next item of the signer key stream. A nil KeyUpdate
// with nil error means the stream is exhausted (HTTP 204); the caller
// keeps its current resume token.
func (c *Client) Update(ctx context.Context, resumeToken string) (*KeyUpdate, error) {
	if resumeToken != "" {
		ctx = retriable.WithHeaders(ctx, map[string]string{
			header.XResumeToken: resumeToken,
		})
	}

	var body bytes.Buffer
	hdr, sc, err := c.conn.Request(ctx, http.MethodGet, c.hosts(), uriUpdate, nil, &body)
	if err != nil {
		return nil, c.mapError(err, sc, uriUpdate)
	}
	if sc == http.StatusNoContent {
		return nil, nil
	}

	kid := hdr.Get(header.XKID)
	token := hdr.Get(header.XResumeToken)
	if kid == "" || token == "" {
		return nil, httperror.Parsing("update response missing key headers")
	}

	return &KeyUpdate{
		KID:              kid,
		EncodedPublicKey: body.String(),
		ResumeToken:      token,
	}, nil
}

// CountryList returns country codes participating in the trust network.
func (c *Client) CountryList(ctx context.Context) ([]string, error) {
	var codes []string
	if err := c.get(ctx, uriCountryList, &codes); err != nil {
		return nil, err
	}
	return codes, nil
}

func (c *Client) hosts() []string {
	return c.cfg.Hosts
}

// get fetches path and decodes the JSON response into body.
func (c *Client) get(ctx context.Context, path string, body interface{}) error {
	_, sc, err := c.conn.Request(ctx, http.MethodGet, c.hosts(), path, nil, body)
	if err != nil {
		return c.mapError(err, sc, path)
	}
	return nil
}

// raw fetches path and returns the response bytes unmodified.
func (c *Client) raw(ctx context.Context, path string) ([]byte, error) {
	var body bytes.Buffer
	_, sc, err := c.conn.Request(ctx, http.MethodGet, c.hosts(), path, nil, &body)
	if err != nil {
		return nil, c.mapError(err, sc, path)
	}
	return body.Bytes(), nil
}

// mapError classifies transport failures into the typed taxonomy,
// passing typed errors from the server through unchanged.
func (c *Client) mapError(err error, sc int, path string) error {
	var he *httperror.Error
	if errors.As(err, &he) {
		return err
	}
	if sc == http.StatusNotFound || httperror.IsNotFound(err) {
		return httperror.NotFound("%s", err.Error()).WithCause(err)
	}
	if sc >= 200 && sc < 300 {
		// transport succeeded but the payload could not be decoded
		return httperror.Parsing("invalid response: %s", path).WithCause(err)
	}

	logger.KV(xlog.WARNING, "path", path, "status", sc, "err", err.Error())
	return httperror.Connection("request failed: %s", path).WithCause(err)
}

func escape(seg string) string {
	return url.PathEscape(seg)
}
