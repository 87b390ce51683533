package ai

import (
	"crypto/rand"
	"fmt"
)

// generateSessionID returns a random UUID (version 4) suitable for a
// backend's --session-id flag.
func generateSessionID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)

	buf[6] = (buf[6] & 0x0f) | 0x40 // version 4
	buf[8] = (buf[8] & 0x3f) | 0x80 // variant 10

	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		buf[0:4], buf[4:6], buf[6:8], buf[8:10], buf[10:16])
}
