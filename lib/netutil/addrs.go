// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"fmt"
	"net"
)

// AdvertiseAddrs expands a listener address into the dial addresses a
// remote peer should try. A concrete host passes through unchanged. A
// wildcard host (empty, 0.0.0.0, ::) expands to one address per local
// unicast IP with the listener's port: IPv4 before IPv6 because most
// LANs route it more reliably, loopback last so remote peers try
// reachable addresses first while same-host sessions still connect.
func AdvertiseAddrs(listenAddr string) ([]string, error) {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return nil, fmt.Errorf("netutil: split listen address %q: %w", listenAddr, err)
	}

	ip := net.ParseIP(host)
	if host != "" && (ip == nil || !ip.IsUnspecified()) {
		// A concrete IP or hostname is already dialable.
		return []string{listenAddr}, nil
	}

	interfaceAddrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("netutil: list interface addresses: %w", err)
	}

	var v4, v6, loopback []string
	for _, addr := range interfaceAddrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		candidate := ipNet.IP
		if candidate.IsLinkLocalUnicast() || candidate.IsMulticast() {
			continue
		}
		dialable := net.JoinHostPort(candidate.String(), port)
		switch {
		case candidate.IsLoopback():
			loopback = append(loopback, dialable)
		case candidate.To4() != nil:
			v4 = append(v4, dialable)
		default:
			v6 = append(v6, dialable)
		}
	}

	addrs := append(append(v4, v6...), loopback...)
	if len(addrs) == 0 {
		return nil, fmt.Errorf("netutil: no usable interface addresses for %q", listenAddr)
	}
	return addrs, nil
}
