package common

import (
	"errors"
	"strings"
)

var ErrModulePaused = errors.New("module paused")

const (
	ModuleBank     = "bank"
	ModuleRegistry = "registry"
	ModuleEscrow   = "escrow"
)

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// StaticPauses is a PauseView backed by a fixed module set, normally loaded
// from node configuration.
type StaticPauses map[string]bool

func (s StaticPauses) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	return s[strings.ToLower(strings.TrimSpace(module))]
}
