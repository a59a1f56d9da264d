package redex

import (
	"crypto/tls"
	"fmt"
	"net"
)

// Dialer opens the duplex byte stream to a single server. It is the seam
// spec.md §1 calls out as an "opaque byte transport" (TLS session setup
// happens here, behind net.Conn) and the extensibility point cluster.go's
// per-node factory and tests use to simulate transport failures.
type Dialer func(opts *ConnectOpts) (net.Conn, error)

// defaultDialer opens a TCP connection, optionally upgraded to TLS,
// honoring ConnectOpts.ConnectTimeout.
func defaultDialer(opts *ConnectOpts) (net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", opts.Hostname, opts.Port)

	conn, err := net.DialTimeout("tcp", addr, opts.ConnectTimeout)
	if err != nil {
		return nil, err
	}

	if opts.TLS {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: opts.Hostname})
		if err := tlsConn.Handshake(); err != nil {
			conn.Close()
			return nil, err
		}
		return tlsConn, nil
	}

	return conn, nil
}
