package api

import (
	"crypto/rand"
	"fmt"
)

// generateDriveCode mints a short printable drive identifier like USB-3FA2B1.
func generateDriveCode() (string, error) {
	var b [3]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate drive code: %w", err)
	}
	return fmt.Sprintf("USB-%X", b[:]), nil
}
