package utils

import (
	"net"
	"net/http"
	"strings"

	ua "github.com/mssola/user_agent"
)

// ClientInfo describes the caller of an HTTP request for request logs
type ClientInfo struct {
	IP       string `json:"ip"`
	Browser  string `json:"browser"`
	OS       string `json:"os"`
	Platform string `json:"platform"` // android, ios, windows, mac, linux, cli
	Mobile   bool   `json:"mobile"`
	Bot      bool   `json:"bot"`
}

// clientTools are user agents of command line HTTP clients, which the
// parser reports as browsers with no platform
var clientTools = []string{"curl/", "wget/", "httpie/", "python-requests/", "go-http-client/"}

// ParseClient extracts the client address and a parsed user agent.
// remoteIP is the address the server saw (gin's ClientIP).
func ParseClient(r *http.Request, remoteIP string) ClientInfo {
	info := ClientInfo{
		IP:       RealIP(r, remoteIP),
		Browser:  "Unknown",
		OS:       "Unknown",
		Platform: "unknown",
	}

	raw := r.UserAgent()
	if raw == "" {
		return info
	}

	lower := strings.ToLower(raw)
	for _, tool := range clientTools {
		if strings.HasPrefix(lower, tool) {
			info.Browser = raw[:len(tool)-1]
			info.Platform = "cli"
			return info
		}
	}

	parser := ua.New(raw)
	info.Bot = parser.Bot()
	info.Mobile = parser.Mobile()
	if name, version := parser.Browser(); name != "" {
		info.Browser = strings.TrimSpace(name + " " + version)
	}
	if os := parser.OS(); os != "" {
		info.OS = os
	}
	info.Platform = platformOf(info.OS, parser.Platform())
	return info
}

func platformOf(os, platform string) string {
	probe := strings.ToLower(os + " " + platform)
	switch {
	case strings.Contains(probe, "android"):
		return "android"
	case strings.Contains(probe, "iphone"), strings.Contains(probe, "ipad"), strings.Contains(probe, "ios"):
		return "ios"
	case strings.Contains(probe, "windows"):
		return "windows"
	case strings.Contains(probe, "mac"):
		return "mac"
	case strings.Contains(probe, "linux"):
		return "linux"
	default:
		return "unknown"
	}
}

// RealIP returns the first public address in X-Real-IP or X-Forwarded-For,
// falling back to remoteIP
func RealIP(r *http.Request, remoteIP string) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); isPublic(ip) {
		return ip
	}

	// Format: X-Forwarded-For: client, proxy1, proxy2
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		for _, part := range strings.Split(forwarded, ",") {
			if ip := strings.TrimSpace(part); isPublic(ip) {
				return ip
			}
		}
	}

	return remoteIP
}

func isPublic(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && !ip.IsPrivate() && !ip.IsLoopback() && !ip.IsUnspecified()
}
