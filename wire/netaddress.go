// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"io"
	"net"
)

// NetAddress defines information about a peer on the network including the
// last time it was seen, the services it supports, its IP address, and port.
type NetAddress struct {
	// Last time the address was seen, in unix time. This is, unfortunately,
	// encoded as a uint32 on the wire and therefore is limited to 2106.
	// This field is not present in the version message.
	Timestamp uint32

	// Bitfield which identifies the services supported by the address.
	Services ServiceFlag

	// IP address of the peer. IPv4 addresses are carried in their 16 byte
	// IPv4-mapped form ::ffff:a.b.c.d.
	IP net.IP

	// Port the peer is using, big endian on the wire.
	Port uint16
}

// NewNetAddress returns a NetAddress for the given host and port.
func NewNetAddress(ip net.IP, port uint16, services ServiceFlag) *NetAddress {
	return &NetAddress{
		Services: services,
		IP:       ip,
		Port:     port,
	}
}

// readNetAddress reads a network address record from r. The timestamp field
// is only present in addr messages, not in version messages.
func readNetAddress(r io.Reader, withTimestamp bool) (*NetAddress, error) {
	na := &NetAddress{}

	if withTimestamp {
		ts, err := readUint32(r)
		if err != nil {
			return nil, err
		}

		na.Timestamp = ts
	}

	services, err := readUint64(r)
	if err != nil {
		return nil, err
	}

	na.Services = ServiceFlag(services)

	ip := make([]byte, 16)
	if _, err = io.ReadFull(r, ip); err != nil {
		return nil, err
	}

	na.IP = ip

	na.Port, err = readUint16BE(r)
	if err != nil {
		return nil, err
	}

	return na, nil
}

// writeNetAddress writes a network address record to w.
func writeNetAddress(w *bytes.Buffer, na *NetAddress, withTimestamp bool) {
	if withTimestamp {
		writeUint32(w, na.Timestamp)
	}

	writeUint64(w, uint64(na.Services))

	// IPv4 addresses go out in their IPv4-mapped IPv6 form
	var ip [16]byte
	if na.IP != nil {
		copy(ip[:], na.IP.To16())
	}

	w.Write(ip[:])
	writeUint16BE(w, na.Port)
}
