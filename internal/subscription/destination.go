package subscription

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Destination is a parsed push URL.
type Destination struct {
	Scheme string
	Host   string
	Port   string
	Path   string
}

// ParseDestination validates raw as an absolute http or https URL with a host.
func ParseDestination(raw string) (Destination, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Destination{}, fmt.Errorf("%w: %v", ErrInvalidDestination, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return Destination{}, fmt.Errorf("%w: scheme %q", ErrInvalidDestination, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return Destination{}, fmt.Errorf("%w: missing host", ErrInvalidDestination)
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if scheme == "https" {
			port = "443"
		}
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return Destination{Scheme: scheme, Host: host, Port: port, Path: path}, nil
}

// UseTLS reports whether the destination is https.
func (d Destination) UseTLS() bool { return d.Scheme == "https" }

// URL renders the destination with an explicit port.
func (d Destination) URL() string {
	return d.Scheme + "://" + net.JoinHostPort(d.Host, d.Port) + d.Path
}

// String is the canonical form used for duplicate detection.
func (d Destination) String() string { return d.URL() }
