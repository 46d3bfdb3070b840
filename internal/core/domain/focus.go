package domain

import (
	"fmt"
	"strings"
)

// FocusMode selects the focus strategy.
type FocusMode int

const (
	// FocusDevice delegates to the instrument's own auto-focus.
	FocusDevice FocusMode = iota + 1
	// FocusSharpness grid-searches working distance for maximum acutance.
	FocusSharpness
	// FocusDoG is a difference-of-Gaussian strategy. Declared, not implemented.
	FocusDoG
)

func (m FocusMode) String() string {
	switch m {
	case FocusDevice:
		return "device"
	case FocusSharpness:
		return "sharpness"
	case FocusDoG:
		return "dog"
	default:
		return "unknown"
	}
}

// ParseFocusMode parses a focus mode tag. "default" is an alias of "device".
func ParseFocusMode(s string) (FocusMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "device", "default", "":
		return FocusDevice, nil
	case "sharpness", "acutance":
		return FocusSharpness, nil
	case "dog":
		return FocusDoG, nil
	default:
		return 0, ErrInvalidArgument.WithDetails(fmt.Sprintf("unknown focus mode %q", s))
	}
}
