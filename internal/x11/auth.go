package x11

import (
	"fmt"
	"os"
)

// Authorizer points the X client library at the cookie file the host
// generated for the display. An empty File leaves the environment alone.
type Authorizer struct {
	File string
}

// SetHostAuthorization implements bridge.Authorizer.
func (a Authorizer) SetHostAuthorization() error {
	if a.File == "" {
		return nil
	}
	if _, err := os.Stat(a.File); err != nil {
		return fmt.Errorf("xauthority: %w", err)
	}
	return os.Setenv("XAUTHORITY", a.File)
}
