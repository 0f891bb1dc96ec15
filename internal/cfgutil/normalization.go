// Copyright (c) 2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfgutil

import (
	"net"
	"strings"
)

// NormalizeAddress returns the normalized form of the address, adding a default
// port if necessary.  An error is returned if the address, even without a port,
// is not valid.
func NormalizeAddress(addr string, defaultPort string) (hostport string, err error) {
	// If the first SplitHostPort errors because of a missing port and not
	// for an invalid host, add the port.  If the second SplitHostPort
	// fails, then a port is not missing and the original error should be
	// returned.
	host, port, origErr := net.SplitHostPort(addr)
	if origErr == nil {
		return net.JoinHostPort(host, port), nil
	}
	addr = net.JoinHostPort(addr, defaultPort)
	_, _, err = net.SplitHostPort(addr)
	if err != nil {
		return "", origErr
	}
	return addr, nil
}

// NormalizeRPCAddress accepts an RPC server given either as host[:port] or
// as an http(s) URL, the form bitcoind users are used to, and returns the
// host:port along with whether the URL asked for TLS.
func NormalizeRPCAddress(addr string, defaultPort string) (hostport string,
	tls bool, err error) {

	switch {
	case strings.HasPrefix(addr, "https://"):
		tls = true
		addr = strings.TrimPrefix(addr, "https://")
	case strings.HasPrefix(addr, "http://"):
		addr = strings.TrimPrefix(addr, "http://")
	}
	addr = strings.TrimSuffix(addr, "/")

	hostport, err = NormalizeAddress(addr, defaultPort)
	return hostport, tls, err
}
