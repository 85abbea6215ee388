package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/docker/eventreporter/pkg/version"
)

// DefaultUserAgent identifies this build and platform.
var DefaultUserAgent = fmt.Sprintf("EventReporter/%s (%s; %s)", version.Version, runtime.GOOS, runtime.GOARCH)

type userAgentTransport struct {
	agent string
	rt    http.RoundTripper
}

func (u *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r2 := req.Clone(req.Context())
	r2.Header.Set("User-Agent", u.agent)
	return u.rt.RoundTrip(r2)
}

type options struct {
	userAgent string
	timeout   time.Duration
	tlsConfig *tls.Config
}

type Opt func(*options)

// WithUserAgent overrides DefaultUserAgent. An empty value keeps the default.
func WithUserAgent(agent string) Opt {
	return func(o *options) {
		if agent != "" {
			o.userAgent = agent
		}
	}
}

func WithTimeout(d time.Duration) Opt {
	return func(o *options) {
		o.timeout = d
	}
}

func WithTLSConfig(cfg *tls.Config) Opt {
	return func(o *options) {
		o.tlsConfig = cfg
	}
}

// NewHTTPClient builds a client with its own connection pool so that closing
// idle connections does not affect http.DefaultTransport users.
func NewHTTPClient(opts ...Opt) *http.Client {
	o := options{
		userAgent: DefaultUserAgent,
		timeout:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	if o.tlsConfig != nil {
		base.TLSClientConfig = o.tlsConfig
	}

	return &http.Client{
		Timeout: o.timeout,
		Transport: &userAgentTransport{
			agent: o.userAgent,
			rt:    base,
		},
	}
}

// SecureTLSConfig returns a TLS 1.2+ client configuration. When caFile is set,
// its PEM certificates replace the system roots.
func SecureTLSConfig(caFile string) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile == "" {
		return cfg, nil
	}

	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("reading CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", caFile)
	}
	cfg.RootCAs = pool
	return cfg, nil
}

// CloseIdle releases pooled connections held by client's transport.
func CloseIdle(client *http.Client) {
	client.CloseIdleConnections()
}
