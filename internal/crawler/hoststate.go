package crawler

import (
	"net/http"
	"net/url"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/jlaffaye/ftp"
)

// HostState owns every live transport connection for one host's crawl
// (spec.md §4.1). It is never shared across hosts and its pools are
// not safe to use concurrently from more than one directory at a time
// (the walker is strictly sequential within a host, spec.md §5).
type HostState struct {
	mu sync.Mutex

	httpClients map[string]*http.Client // keyed by authority (host:port)
	ftpConns    map[string]*ftp.ServerConn

	// KeepalivesAvailable is set true the first time an HTTP response
	// is deemed reusable, and never cleared (spec.md §4.1).
	KeepalivesAvailable bool
}

// NewHostState constructs an empty HostState.
func NewHostState() *HostState {
	return &HostState{
		httpClients: make(map[string]*http.Client),
		ftpConns:    make(map[string]*ftp.ServerConn),
	}
}

func authority(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Wrap(err, "crawler: parse url")
	}
	return u.Host, nil
}

// httpClient returns the pooled *http.Client for url's authority,
// creating one lazily. The transport never auto-follows redirects;
// handleRedirect in http_probe.go does that explicitly per spec.md §4.3.
func (h *HostState) httpClient(rawURL string) (*http.Client, error) {
	auth, err := authority(rawURL)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.httpClients[auth]
	if !ok {
		c = &http.Client{
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
		h.httpClients[auth] = c
	}
	return c, nil
}

// closeHTTP drops the pooled connection for url's authority. The
// stdlib *http.Client itself does not expose a single-connection
// close; CloseIdleConnections on a dedicated client achieves the same
// observable effect since each authority gets its own client.
func (h *HostState) closeHTTP(rawURL string) {
	auth, err := authority(rawURL)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.httpClients[auth]; ok {
		c.CloseIdleConnections()
		delete(h.httpClients, auth)
	}
}

func (h *HostState) markReusable(rawURL string, ok bool) {
	if ok {
		h.mu.Lock()
		h.KeepalivesAvailable = true
		h.mu.Unlock()
		return
	}
	h.closeHTTP(rawURL)
}

// ftpConn returns the pooled, logged-in *ftp.ServerConn for url's
// authority, dialing and logging in anonymously if necessary.
func (h *HostState) ftpConn(rawURL string) (*ftp.ServerConn, error) {
	auth, err := authority(rawURL)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.ftpConns[auth]
	if ok {
		return c, nil
	}
	c, err = ftp.Dial(auth)
	if err != nil {
		return nil, errors.Wrap(err, "crawler: ftp dial")
	}
	if err := c.Login("anonymous", "anonymous"); err != nil {
		return nil, errors.Wrap(err, "crawler: ftp login")
	}
	h.ftpConns[auth] = c
	return c, nil
}

// closeFTP drops the pooled connection for url's authority, tolerating
// any failure of the logout (spec.md §4.1).
func (h *HostState) closeFTP(rawURL string) {
	auth, err := authority(rawURL)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.ftpConns[auth]; ok {
		_ = c.Quit()
		delete(h.ftpConns, auth)
	}
}

// Close releases every pooled connection. Idempotent.
func (h *HostState) Close() {
	h.mu.Lock()
	clients := h.httpClients
	h.httpClients = make(map[string]*http.Client)
	conns := h.ftpConns
	h.ftpConns = make(map[string]*ftp.ServerConn)
	h.mu.Unlock()

	for _, c := range clients {
		c.CloseIdleConnections()
	}
	for _, c := range conns {
		_ = c.Quit()
	}
}
