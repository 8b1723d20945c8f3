package server

import (
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
)

// hardwareID derives a stable device identity from the first interface
// with a MAC address, falling back to a random UUID when none exists
// (containers, test environments).
func hardwareID() string {
	ifaces, err := net.Interfaces()
	if err == nil {
		for _, iface := range ifaces {
			if len(iface.HardwareAddr) == 0 {
				continue
			}
			var sb strings.Builder
			for _, b := range iface.HardwareAddr {
				fmt.Fprintf(&sb, "%02X", b)
			}
			return sb.String()
		}
	}
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}
