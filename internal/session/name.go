package session

import "strings"

// knownBrands maps a lowercase substring match against a User-Agent (or a
// clientInfo.name) to the canonical capitalized brand name the UI should
// display for it.
var knownBrands = []struct {
	substr string
	name   string
}{
	{"chatwise", "ChatWise"},
	{"flowdown", "FlowDown"},
	{"claude", "Claude"},
}

// CleanName canonicalizes a raw name or User-Agent string into a short
// display form, per the Session Registry's naming rules: known brand
// substrings win outright; otherwise an "A/B..." token takes the head
// before the first slash (covers CLI tools like curl/7.68.0); a Mozilla-
// style browser UA is reduced to its browser family; a reverse-DNS-looking
// bundle id is reduced to its capitalized last segment. Anything else is
// returned unchanged.
func CleanName(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	lower := strings.ToLower(raw)

	for _, b := range knownBrands {
		if strings.Contains(lower, b.substr) {
			return b.name
		}
	}

	if idx := strings.Index(raw, "/"); idx > 0 {
		head := raw[:idx]
		if !strings.EqualFold(head, "mozilla") {
			return head
		}
		return browserFamily(lower)
	}

	if looksReverseDNS(raw) {
		parts := strings.Split(raw, ".")
		return capitalize(parts[len(parts)-1])
	}

	return raw
}

func browserFamily(lowerUA string) string {
	switch {
	case strings.Contains(lowerUA, "edg/") || strings.Contains(lowerUA, "edge"):
		return "Edge"
	case strings.Contains(lowerUA, "chrome"):
		return "Chrome"
	case strings.Contains(lowerUA, "safari"):
		return "Safari"
	case strings.Contains(lowerUA, "firefox"):
		return "Firefox"
	default:
		return "Browser"
	}
}

// looksReverseDNS reports whether s looks like a reverse-DNS bundle
// identifier (e.g. "com.apple.dt.Xcode"): at least two dots, no spaces or
// slashes, and every dot-separated segment non-empty.
func looksReverseDNS(s string) bool {
	if strings.ContainsAny(s, " /\\") {
		return false
	}
	parts := strings.Split(s, ".")
	if len(parts) < 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
