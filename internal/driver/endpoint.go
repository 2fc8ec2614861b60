package driver

import (
	"fmt"
	"net"
	"strconv"
)

// DefaultPort is the TCP port LED controllers listen on out of the box.
const DefaultPort = 4010

// Endpoint identifies one physical TCP controller. It is comparable and is
// used as the handler deduplication key.
type Endpoint struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Validate checks the host is set and the port is in range.
func (e Endpoint) Validate() error {
	if e.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidEndpoint)
	}
	if e.Port < 1 || e.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidEndpoint, e.Port)
	}
	return nil
}

// Address returns host:port suitable for net.Dial.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// HostPort returns "host:port" without IPv6 brackets. Unique ids are built
// from it.
func (e Endpoint) HostPort() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// String returns the endpoint as a URL, e.g. "tcp://10.0.0.5:4010".
func (e Endpoint) String() string {
	return "tcp://" + e.Address()
}
