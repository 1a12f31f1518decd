package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"syscall"
	"time"
)

// DefaultGateway is the public IPFS gateway used when none is configured.
const DefaultGateway = "https://ipfs.io/ipfs/"

const maxDocumentSize = 1 << 20

const fetchTimeout = 10 * time.Second

// errBlockedAddress is returned when a direct fetch would reach a loopback,
// private or link-local address.
var errBlockedAddress = errors.New("address not publicly routable")

// HTTPResolver fetches metadata documents over HTTP(S). References of the
// form ipfs://<cid>[/path] are rewritten onto the configured gateway.
//
// Product metadata references are caller supplied, so plain http(s) URLs
// are refused unless WithDirectURLs is set, and even then never dial a
// non-public address unless WithPrivateNetworks is set too. The gateway is
// operator configured and is not restricted.
type HTTPResolver struct {
	client       *http.Client
	gateway      string
	direct       bool
	allowPrivate bool
	directClient *http.Client
}

// HTTPOption configures an HTTPResolver.
type HTTPOption func(*HTTPResolver)

// WithGateway sets the IPFS gateway base URL.
func WithGateway(gateway string) HTTPOption {
	return func(r *HTTPResolver) {
		if !strings.HasSuffix(gateway, "/") {
			gateway += "/"
		}
		r.gateway = gateway
	}
}

// WithHTTPClient sets the client used for fetches.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(r *HTTPResolver) { r.client = c }
}

// WithDirectURLs lets http:// and https:// references be fetched as-is.
func WithDirectURLs() HTTPOption {
	return func(r *HTTPResolver) { r.direct = true }
}

// WithPrivateNetworks lets direct fetches reach loopback and private
// addresses. Only for development.
func WithPrivateNetworks() HTTPOption {
	return func(r *HTTPResolver) { r.allowPrivate = true }
}

// NewHTTPResolver creates a resolver with a 10s timeout and the default gateway.
func NewHTTPResolver(opts ...HTTPOption) *HTTPResolver {
	r := &HTTPResolver{
		client:  &http.Client{Timeout: fetchTimeout},
		gateway: DefaultGateway,
	}
	for _, opt := range opts {
		opt(r)
	}

	dialer := &net.Dialer{Timeout: fetchTimeout}
	if !r.allowPrivate {
		dialer.Control = publicOnly
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	r.directClient = &http.Client{Timeout: fetchTimeout, Transport: transport}
	return r
}

// URL maps ref onto the URL that will be fetched.
func (r *HTTPResolver) URL(ref string) string {
	if cid, ok := strings.CutPrefix(ref, "ipfs://"); ok {
		return r.gateway + strings.TrimPrefix(cid, "ipfs/")
	}
	return ref
}

// Resolve implements Resolver.
func (r *HTTPResolver) Resolve(ctx context.Context, ref string) (*Metadata, error) {
	client := r.client
	if !strings.HasPrefix(ref, "ipfs://") {
		if !r.direct {
			return nil, fmt.Errorf("%w: direct URL references are disabled: %s", ErrUnresolvable, ref)
		}
		client = r.directClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL(ref), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnresolvable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %w", ErrUnresolvable, ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetch %s: status %d", ErrUnresolvable, ref, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrUnresolvable, ref, err)
	}
	return Decode(data)
}

// cgnat is the shared address space of RFC 6598, not covered by IsPrivate.
var cgnat = netip.MustParsePrefix("100.64.0.0/10")

// publicOnly is a net.Dialer Control hook that refuses non-public peers. It
// runs after name resolution, so DNS names pointing inward are caught too.
func publicOnly(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return err
	}
	ip = ip.Unmap()
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast() || cgnat.Contains(ip) {
		return fmt.Errorf("%w: %s", errBlockedAddress, ip)
	}
	return nil
}
