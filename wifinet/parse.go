package wifinet

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	essidRegex      = regexp.MustCompile(`ESSID:"([^"]+)"`)
	signalRegex     = regexp.MustCompile(`Signal level[=:](-?\d+)`)
	encryptionRegex = regexp.MustCompile(`Encryption key:(on|off)`)
)

// parseNmcliScan parses `nmcli -t -f SSID,SIGNAL,SECURITY device wifi list`
// output: one colon-separated network per line.
func parseNmcliScan(out string) []Network {
	var networks []Network
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, ":", 3)
		ssid := strings.TrimSpace(parts[0])
		if ssid == "" {
			continue
		}

		n := Network{SSID: ssid, Security: "Open", Frequency: "2.4 GHz"}
		if len(parts) > 1 {
			if signal, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil {
				n.Signal = signal
			}
		}
		if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
			n.Security = strings.TrimSpace(parts[2])
		}
		networks = append(networks, n)
	}
	return networks
}

// parseIwlistScan parses `iwlist <iface> scan` output. Signal levels in dBm
// are shifted into a rough 0-100 scale.
func parseIwlistScan(out string) []Network {
	var networks []Network
	for _, cell := range strings.Split(out, "Cell ") {
		ssidMatch := essidRegex.FindStringSubmatch(cell)
		if ssidMatch == nil {
			continue
		}

		n := Network{SSID: ssidMatch[1], Signal: 50, Security: "Open", Frequency: "2.4 GHz"}
		if m := signalRegex.FindStringSubmatch(cell); m != nil {
			if level, err := strconv.Atoi(m[1]); err == nil {
				n.Signal = clamp(level+100, 0, 100)
			}
		}
		if m := encryptionRegex.FindStringSubmatch(cell); m != nil && m[1] == "on" {
			n.Security = "WPA2"
		}
		networks = append(networks, n)
	}
	return networks
}

// parseNmcliStatus parses `nmcli -t -f GENERAL.STATE,GENERAL.CONNECTION,IP4.ADDRESS device show`.
func parseNmcliStatus(out string) Status {
	var status Status
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch {
		case strings.HasPrefix(key, "GENERAL.STATE"):
			status.Connected = strings.Contains(value, "100")
		case strings.HasPrefix(key, "GENERAL.CONNECTION"):
			status.SSID = value
		case strings.HasPrefix(key, "IP4.ADDRESS"):
			ip, _, _ := strings.Cut(value, "/")
			status.IP = ip
		}
	}
	return status
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
