package main

import (
	"log/slog"
	"net"
	"strconv"
)

// logAccessURLs logs where browsers can reach the relay: the loopback URL and,
// for wildcard binds, the first LAN IPv4 address so a second device (phone)
// on the same network can join.
func logAccessURLs(logger *slog.Logger, addr net.Addr) {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		logger.Info("callroom relay listening", "addr", addr.String())
		return
	}

	local := "http://" + net.JoinHostPort(displayHost(tcp.IP), strconv.Itoa(tcp.Port))
	attrs := []any{"local_url", local}
	if tcp.IP == nil || tcp.IP.IsUnspecified() {
		if ip := firstLANIPv4(interfaceAddrs()); ip != nil {
			attrs = append(attrs, "lan_url", "http://"+net.JoinHostPort(ip.String(), strconv.Itoa(tcp.Port)))
		}
	}
	logger.Info("callroom relay listening", attrs...)
}

func displayHost(ip net.IP) string {
	if ip == nil || ip.IsUnspecified() {
		return "localhost"
	}
	return ip.String()
}

func interfaceAddrs() []net.Addr {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	return addrs
}

// firstLANIPv4 returns the first non-loopback IPv4 address, or nil.
func firstLANIPv4(addrs []net.Addr) net.IP {
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			continue
		}
		if v4 := ip.To4(); v4 != nil {
			return v4
		}
	}
	return nil
}
