package server

import (
	"net"
	"strconv"
	"strings"

	"github.com/Tyrowin/syncboard/internal/config"
)

// LocalIP returns the address of the interface used for outbound traffic.
// Dialing UDP sends no packet; it only makes the kernel pick a route. Falls
// back to 127.0.0.1 when there is no route.
func LocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP == nil {
		return "127.0.0.1"
	}
	return addr.IP.String()
}

// BoardURL is the address other devices on the LAN use to open the board.
func BoardURL(cfg *config.Config) string {
	if cfg.PublicURL != "" {
		return strings.TrimRight(cfg.PublicURL, "/") + "/"
	}
	return "http://" + net.JoinHostPort(LocalIP(), strconv.Itoa(cfg.Port)) + "/"
}
