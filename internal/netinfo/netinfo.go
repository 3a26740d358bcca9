// Package netinfo enumerates local IPv4 interfaces and their broadcast
// addresses. Built directly on net.Interfaces/net.InterfaceAddrs from the
// standard library, since no third-party library offers a meaningfully
// more convenient interface-enumeration API.
package netinfo

import (
	"net"

	"github.com/ShivamForkedRepos/ndrop/internal/xerrors"
)

// Addresses pairs a bound IPv4 address with the broadcast address of the
// interface it belongs to.
type Addresses struct {
	Addrs      []string
	Broadcasts []string
}

// Enumerate walks non-loopback IPv4 interfaces that are up, computing each
// one's broadcast address from its IP and netmask. When bind is non-empty,
// the result is restricted to the interface owning that address. Failure
// to enumerate is reported as a ConfigError: the caller treats it as fatal
// at startup, per §4.1.
func Enumerate(bind string) (Addresses, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return Addresses{}, xerrors.ConfigError{Field: "Listen", Message: "cannot enumerate network interfaces: " + err.Error()}
	}

	var out Addresses
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}
			if bind != "" && ip4.String() != bind {
				continue
			}
			out.Addrs = append(out.Addrs, ip4.String())
			out.Broadcasts = append(out.Broadcasts, broadcastOf(ip4, ipNet.Mask))
		}
	}
	if bind != "" && len(out.Addrs) == 0 {
		return Addresses{}, xerrors.ConfigError{Field: "Listen", Message: "no interface owns address " + bind}
	}
	return out, nil
}

// broadcastOf computes ip | ^mask, the standard IPv4 directed-broadcast
// address for the subnet ip/mask belongs to.
func broadcastOf(ip net.IP, mask net.IPMask) string {
	bcast := make(net.IP, len(ip))
	for i := range ip {
		bcast[i] = ip[i] | ^mask[i]
	}
	return bcast.String()
}
