package common

import "errors"

// ErrModulePaused is returned when a mutating operation is attempted against a
// paused module.
var ErrModulePaused = errors.New("module paused")

// PauseView reports the pause flag for a named module. The zero value of any
// implementation should report unpaused.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the named module is paused. A nil view or empty
// module name disables the check.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
