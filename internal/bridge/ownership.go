package bridge

import (
	"errors"
	"fmt"
	"log/slog"
)

// selection is a named selection target and its atom on the display.
type selection struct {
	name string
	atom Atom
}

// claimOwnership takes every selection in order for owner and reads each
// owner back. A claim can be lost silently under contention, so the
// read-back decides success.
func claimOwnership(d Display, owner WindowID, sels []selection) error {
	for _, sel := range sels {
		if err := d.ClaimSelection(sel.atom, owner); err != nil {
			if errors.Is(err, ErrFatalIO) {
				return err
			}
			return fmt.Errorf("%w: %s: %w", ErrOwnershipClaimFailed, sel.name, err)
		}
		got, err := d.SelectionOwner(sel.atom)
		if err != nil {
			if errors.Is(err, ErrFatalIO) {
				return err
			}
			return fmt.Errorf("%w: %s: read back owner: %w", ErrOwnershipClaimFailed, sel.name, err)
		}
		if got != owner {
			return fmt.Errorf("%w: %s owned by 0x%x, want 0x%x", ErrOwnershipClaimFailed, sel.name, got, owner)
		}
		slog.Debug("selection owned", "selection", sel.name, "window", fmt.Sprintf("0x%x", owner))
	}
	return nil
}
