package zframe

import (
	"fmt"
	"net"
	"strings"
)

// findFreePort finds an available TCP port on the loopback interface
func findFreePort() int {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 5555
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 5555
	}
	defer l.Close()

	return l.Addr().(*net.TCPAddr).Port
}

// FreeTCPEndpoint returns a loopback tcp:// endpoint on a currently free
// port.
func FreeTCPEndpoint() string {
	return fmt.Sprintf("tcp://127.0.0.1:%d", findFreePort())
}

// ConnectEndpoint turns a bind endpoint into one a local peer can dial by
// replacing a wildcard host with localhost.
func ConnectEndpoint(bind string) string {
	scheme, rest, ok := strings.Cut(bind, "://")
	if !ok || scheme != "tcp" {
		return bind
	}
	host, port, err := net.SplitHostPort(rest)
	if err != nil {
		return bind
	}
	switch host {
	case "*", "", "0.0.0.0", "::":
		host = "localhost"
	}
	return scheme + "://" + net.JoinHostPort(host, port)
}
