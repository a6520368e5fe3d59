// Package chrome implements a client for the Chrome DevTools Protocol: HTTP
// discovery of inspectable pages and a WebSocket connection with per-target
// sessions.
package chrome

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// Endpoint identifies a remote debugging server. Immutable once constructed.
type Endpoint struct {
	Host string
	Port int
}

// NewEndpoint validates the host and port and returns an Endpoint.
func NewEndpoint(host string, port int) (Endpoint, error) {
	if host == "" {
		return Endpoint{}, fmt.Errorf("devtools endpoint host cannot be empty")
	}
	if port < 1 || port > 65535 {
		return Endpoint{}, fmt.Errorf("devtools endpoint port %d is out of range (1-65535)", port)
	}
	return Endpoint{Host: host, Port: port}, nil
}

// Addr returns the host:port form of the endpoint.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// BaseURL returns the HTTP base URL of the discovery interface.
func (e Endpoint) BaseURL() *url.URL {
	return &url.URL{Scheme: "http", Host: e.Addr()}
}

func (e Endpoint) String() string {
	return e.BaseURL().String()
}
