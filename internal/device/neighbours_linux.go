//go:build linux

package device

import (
	"fmt"
	"strings"

	"github.com/vishvananda/netlink"
)

// neighbourTable maps lower-case MAC addresses to IPv4 addresses from the
// kernel's ARP table. Guests on bridged networks have no libvirt lease.
var neighbourTable = func() (map[string]string, error) {
	neighs, err := netlink.NeighList(0, netlink.FAMILY_V4)
	if err != nil {
		return nil, fmt.Errorf("list neighbours: %w", err)
	}
	out := make(map[string]string, len(neighs))
	for _, n := range neighs {
		if n.HardwareAddr == nil || n.IP == nil {
			continue
		}
		if n.State&(netlink.NUD_FAILED|netlink.NUD_INCOMPLETE) != 0 {
			continue
		}
		out[strings.ToLower(n.HardwareAddr.String())] = n.IP.String()
	}
	return out, nil
}
