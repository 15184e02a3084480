package bridge

import (
	"net"
	"strconv"
	"strings"

	"github.com/conneroisu/djbridge/internal/plugins"
)

// ResolveDevServerURL computes the URL browsers use to reach the dev server
// bound at addr. Only TCP addresses with a real port qualify; for anything
// else the second result is false and no URL should be published.
//
// A configured origin wins unless it is the placeholder. Otherwise the
// scheme follows the TLS setting and unspecified bind addresses are
// advertised as localhost.
func ResolveDevServerURL(addr net.Addr, server plugins.ServerOptions) (string, bool) {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok || tcp == nil || tcp.Port <= 0 {
		return "", false
	}

	if origin := strings.TrimRight(server.Origin, "/"); origin != "" && origin != PlaceholderOrigin {
		return origin, true
	}

	scheme := "http"
	if server.HTTPS.Enabled() {
		scheme = "https"
	}

	host := server.PublicHost
	if host == "" {
		host = advertisedHost(tcp.IP)
	}

	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(tcp.Port)), true
}

func advertisedHost(ip net.IP) string {
	if ip == nil || ip.IsUnspecified() {
		return "localhost"
	}
	return ip.String()
}
