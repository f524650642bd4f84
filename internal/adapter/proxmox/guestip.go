package proxmox

import (
	"net"
	"regexp"
	"strings"
)

var ipv4Pattern = regexp.MustCompile(`\b(\d{1,3}(?:\.\d{1,3}){3})\b`)

// extractFirstIPv4 scrapes the first non-loopback IPv4 literal out of free
// text (guest-agent exec output, which is JSON but not worth a full parse
// for a single address).
func extractFirstIPv4(text string) string {
	for _, m := range ipv4Pattern.FindAllString(text, -1) {
		ip := net.ParseIP(m)
		if ip == nil || ip.IsLoopback() {
			continue
		}
		if ip4 := ip.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return ""
}

// parseIPConfig extracts the "ip=" field from a Proxmox ipconfigN string,
// e.g. "ip=192.168.1.80/24,gw=192.168.1.1" -> "192.168.1.80".
func parseIPConfig(ipconfig string) string {
	if ipconfig == "" {
		return ""
	}
	for _, part := range strings.Split(ipconfig, ",") {
		part = strings.TrimSpace(part)
		if !strings.HasPrefix(part, "ip=") {
			continue
		}
		val := strings.TrimPrefix(part, "ip=")
		if val == "dhcp" {
			return ""
		}
		if idx := strings.Index(val, "/"); idx >= 0 {
			val = val[:idx]
		}
		if net.ParseIP(val) != nil {
			return val
		}
	}
	return ""
}
