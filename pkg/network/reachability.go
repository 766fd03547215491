// Package network answers whether the host currently has a usable network link.
package network

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/net"
)

// Checker reports whether the network is reachable. Implementations must not block on I/O.
type Checker interface {
	Reachable() bool
}

// InterfaceChecker inspects local interfaces: the network is reachable when at least one
// non-loopback interface is up and has an address assigned.
type InterfaceChecker struct {
	interfaces func() ([]net.InterfaceStat, error)
	logger     zerolog.Logger
}

// NewInterfaceChecker creates a checker backed by gopsutil's interface listing.
func NewInterfaceChecker(logger zerolog.Logger) *InterfaceChecker {
	return &InterfaceChecker{
		interfaces: net.Interfaces,
		logger:     logger,
	}
}

// Reachable returns false when interfaces cannot be listed.
func (c *InterfaceChecker) Reachable() bool {
	stats, err := c.interfaces()
	if err != nil {
		c.logger.Debug().Err(err).Msg("Failed to list network interfaces")
		return false
	}

	for _, iface := range stats {
		if usable(iface) {
			return true
		}
	}
	return false
}

func usable(iface net.InterfaceStat) bool {
	up := false
	for _, flag := range iface.Flags {
		switch strings.ToLower(flag) {
		case "loopback":
			return false
		case "up":
			up = true
		}
	}
	return up && len(iface.Addrs) > 0
}

// Static is a Checker with a fixed answer.
type Static bool

// Reachable returns the fixed answer.
func (s Static) Reachable() bool { return bool(s) }
