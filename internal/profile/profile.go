// Package profile defines the fixed set of service identities the decoy
// can assume. Every responder reads the same selected profile so the HTTP
// banners, WebSocket handshake, and mDNS records stay consistent.
package profile

import (
	"fmt"
	"sort"
)

// Profile is the immutable identity bundle resolved once at startup.
type Profile struct {
	// Name is the selection key used in configuration.
	Name string

	// DisplayName is the human-facing product name.
	DisplayName string

	// Slug is the internal service identifier used in channel names,
	// archive keys, and mDNS instance naming.
	Slug string

	// Version is the product version advertised in banners and handshakes.
	Version string

	// ServiceType is the mDNS service type, e.g. "_openclaw._tcp.local.".
	ServiceType string

	// ServerBanner is the value of the HTTP Server header.
	ServerBanner string

	// PoweredBy is the value of the X-Powered-By header.
	PoweredBy string

	// UITitle is the title an operator dashboard would render.
	UITitle string

	// CLIPath is a decoy install path advertised over mDNS TXT records.
	// It is a static fingerprinting string and is never resolved on disk.
	CLIPath string

	// GatewayPort is the port advertised in TXT/SRV records.
	GatewayPort int

	// SSHPort is the decoy SSH port advertised in TXT records.
	SSHPort int
}

var profiles = map[string]Profile{
	"openclaw": {
		Name:         "openclaw",
		DisplayName:  "OpenClaw",
		Slug:         "openclaw",
		Version:      "2026.1.24",
		ServiceType:  "_openclaw._tcp.local.",
		ServerBanner: "OpenClaw-Gateway/2026.1.24",
		PoweredBy:    "openclaw",
		UITitle:      "OpenClaw Control",
		CLIPath:      "/usr/local/lib/node_modules/openclaw/bin/openclaw.js",
		GatewayPort:  18789,
		SSHPort:      22,
	},
	"agentgate": {
		Name:         "agentgate",
		DisplayName:  "AgentGate",
		Slug:         "agentgate",
		Version:      "1.9.3",
		ServiceType:  "_agentgate._tcp.local.",
		ServerBanner: "AgentGate/1.9.3",
		PoweredBy:    "agentgate-core",
		UITitle:      "AgentGate Console",
		CLIPath:      "/opt/agentgate/bin/agentgate",
		GatewayPort:  18789,
		SSHPort:      22,
	},
	"hivemesh": {
		Name:         "hivemesh",
		DisplayName:  "HiveMesh",
		Slug:         "hivemesh",
		Version:      "0.14.2",
		ServiceType:  "_hivemesh._tcp.local.",
		ServerBanner: "HiveMesh-Edge/0.14.2",
		PoweredBy:    "hivemesh",
		UITitle:      "HiveMesh Operator",
		CLIPath:      "/home/hive/.hivemesh/bin/hivemesh-cli",
		GatewayPort:  18789,
		SSHPort:      2222,
	},
}

// DefaultName is the identity used when none is configured.
const DefaultName = "openclaw"

// Select resolves an identity variant by name.
func Select(name string) (*Profile, error) {
	if name == "" {
		name = DefaultName
	}
	p, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("unknown identity %q (supported: %v)", name, Names())
	}
	// Return a copy so callers cannot mutate the shared table.
	return &p, nil
}

// Names returns the supported identity names, sorted.
func Names() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
