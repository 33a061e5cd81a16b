package presence

import (
	"strings"

	"github.com/nerrad567/fritz-presence/internal/fritzbox"
)

// ParseMACList splits a ';' separated list, trims each entry and keeps the
// valid MAC addresses in upper-case colon notation. Duplicates are dropped;
// invalid entries are returned separately so callers can report them.
//
// Example:
//
//	valid, invalid := presence.ParseMACList("aa:bb:cc:dd:ee:ff; junk")
//	// valid = [AA:BB:CC:DD:EE:FF], invalid = [junk]
func ParseMACList(list string) (valid, invalid []string) {
	seen := make(map[string]bool)
	for _, part := range strings.Split(list, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mac, err := fritzbox.NormalizeMAC(part)
		if err != nil {
			invalid = append(invalid, part)
			continue
		}
		if !seen[mac] {
			seen[mac] = true
			valid = append(valid, mac)
		}
	}
	return valid, invalid
}
