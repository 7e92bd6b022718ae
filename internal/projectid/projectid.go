// Package projectid derives the 8-character hex ProjectId that namespaces
// every multiplexer session name, and provides the total (projectId,
// userName) <-> multiplexer-name mapping (§3, §8).
package projectid

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Prefix is the fixed tmux/multiplexer session-name prefix the dashboard uses.
const Prefix = "agt"

// Of derives the deterministic 8-character lowercase-hex project id from an
// absolute working directory path: the first 4 bytes of SHA-256, hex-encoded.
func Of(absPath string) string {
	sum := sha256.Sum256([]byte(absPath))
	return hex.EncodeToString(sum[:4])
}

// MultiplexName is the total function (projectId, userName) -> fully
// qualified multiplexer session name: "<prefix>-<projectId>-<name>".
func MultiplexName(projectID, userName string) string {
	return Prefix + "-" + projectID + "-" + userName
}

// ParseUserName inverts MultiplexName for a known projectId: it strips the
// "<prefix>-<projectId>-" header and returns the remainder verbatim (the
// user name itself may contain hyphens). Returns ("", false) if name does
// not belong to projectID.
func ParseUserName(multiplexName, projectID string) (string, bool) {
	header := Prefix + "-" + projectID + "-"
	if !strings.HasPrefix(multiplexName, header) {
		return "", false
	}
	return multiplexName[len(header):], true
}
