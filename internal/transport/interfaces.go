package transport

import (
	"fmt"
	"net"
	"strings"
)

// BroadcastTargets lists every up, non-loopback IPv4 interface that
// supports broadcast, with its directed broadcast address.
func BroadcastTargets() ([]ScanTarget, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	var targets []ScanTarget
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 ||
			iface.Flags&net.FlagLoopback != 0 ||
			iface.Flags&net.FlagBroadcast == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			bcast := BroadcastAddress(ipNet)
			if bcast == nil {
				continue
			}
			targets = append(targets, ScanTarget{
				Interface: iface.Name,
				Local:     ipNet.IP.To4(),
				Broadcast: bcast,
			})
		}
	}

	return targets, nil
}

// BroadcastAddress returns the directed broadcast address of an IPv4
// network, or nil for IPv6 and host routes.
func BroadcastAddress(n *net.IPNet) net.IP {
	ip := n.IP.To4()
	if ip == nil {
		return nil
	}

	mask := n.Mask
	if len(mask) == net.IPv6len {
		mask = mask[12:]
	}
	if len(mask) != net.IPv4len {
		return nil
	}
	if ones, _ := net.IPMask(mask).Size(); ones >= 31 {
		return nil
	}

	bcast := make(net.IP, net.IPv4len)
	for i := range ip {
		bcast[i] = ip[i] | ^mask[i]
	}
	return bcast
}

// ParseTargets turns configured broadcast addresses ("192.168.1.255" or
// "eth0=192.168.1.255") into scan targets.
func ParseTargets(entries []string) ([]ScanTarget, error) {
	targets := make([]ScanTarget, 0, len(entries))
	for _, entry := range entries {
		name, addr := entry, entry
		if i := strings.IndexByte(entry, '='); i >= 0 {
			name, addr = entry[:i], entry[i+1:]
		}

		ip := net.ParseIP(strings.TrimSpace(addr)).To4()
		if ip == nil {
			return nil, fmt.Errorf("invalid broadcast address %q", entry)
		}

		targets = append(targets, ScanTarget{
			Interface: strings.TrimSpace(name),
			Broadcast: ip,
		})
	}
	return targets, nil
}
