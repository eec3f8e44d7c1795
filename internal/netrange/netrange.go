// Package netrange expands CIDR target specifications into concrete
// host addresses for scanning.
package netrange

import (
	"fmt"
	"net/netip"
	"strings"
)

// InvalidRangeError indicates a malformed or unsupported target range.
type InvalidRangeError struct {
	Range  string
	Reason string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid target range %q: %s", e.Range, e.Reason)
}

// Expand parses an IPv4 CIDR range and returns the usable host
// addresses in ascending order. For prefixes /30 and wider the network
// and broadcast addresses are excluded. A /31 yields both addresses
// and a /32 (or a bare address) yields the single address. Host bits
// set below the prefix are masked off rather than rejected.
//
// On malformed input Expand returns an empty slice together with an
// *InvalidRangeError; callers must treat an empty result as "no valid
// targets" and abort the run.
func Expand(cidr string) ([]string, error) {
	spec := strings.TrimSpace(cidr)
	if spec == "" {
		return nil, &InvalidRangeError{Range: cidr, Reason: "empty range"}
	}

	// A bare address is shorthand for a single-host range.
	if !strings.Contains(spec, "/") {
		spec += "/32"
	}

	prefix, err := netip.ParsePrefix(spec)
	if err != nil {
		return nil, &InvalidRangeError{Range: cidr, Reason: err.Error()}
	}
	if !prefix.Addr().Is4() {
		return nil, &InvalidRangeError{Range: cidr, Reason: "only IPv4 ranges are supported"}
	}

	prefix = prefix.Masked()
	total := 1 << (32 - prefix.Bits())

	// /31 and /32 have no distinct network/broadcast addresses.
	first := prefix.Addr()
	count := total
	if prefix.Bits() <= 30 {
		first = first.Next()
		count = total - 2
	}

	hosts := make([]string, 0, count)
	addr := first
	for i := 0; i < count; i++ {
		hosts = append(hosts, addr.String())
		addr = addr.Next()
	}
	return hosts, nil
}
