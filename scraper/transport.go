package scraper

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	tls "github.com/refraction-networking/utls"
)

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec *tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// Go's http.Transport cannot speak h2 over a utls connection.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = &spec
}

// newTransport builds the shared round tripper. With fingerprint set, TLS is
// dialed with a Chrome ClientHello; proxy, if non-empty, must be http(s).
func newTransport(fingerprint bool, proxy string) (*http.Transport, error) {
	transport := &http.Transport{
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   false,
	}

	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil || (proxyURL.Scheme != "http" && proxyURL.Scheme != "https") {
			return nil, fmt.Errorf("scraper: unsupported proxy %q", proxy)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	// A proxied request tunnels TLS through CONNECT, which DialTLSContext
	// would bypass; keep the stock TLS stack in that case.
	if fingerprint && proxy == "" && chromeH1Spec != nil {
		transport.DialTLSContext = dialTLSChrome
	}
	return transport, nil
}

// dialTLSChrome establishes a TLS connection using a Chrome fingerprint via utls.
func dialTLSChrome(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
	if err := tlsConn.ApplyPreset(chromeH1Spec); err != nil {
		conn.Close()
		return nil, fmt.Errorf("scraper: apply tls spec: %w", err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}
