// Package output renders job and operation tables for the terminal.
package output

import (
	"github.com/fatih/color"

	"github.com/geetools/exportsched/internal/core"
	"github.com/geetools/exportsched/internal/scheduler"
)

// Phase symbols.
const (
	SymbolPending   = "○"
	SymbolRunning   = "●"
	SymbolSucceeded = "✓"
	SymbolFailed    = "✗"
)

// PhaseSymbol returns the symbol for a job phase.
func PhaseSymbol(p scheduler.Phase) string {
	switch p {
	case scheduler.PhaseRunning:
		return SymbolRunning
	case scheduler.PhaseSucceeded:
		return SymbolSucceeded
	case scheduler.PhaseFailed:
		return SymbolFailed
	default:
		return SymbolPending
	}
}

// PhaseColorize colors s by phase. It returns s unchanged when color is
// disabled.
func PhaseColorize(s string, p scheduler.Phase) string {
	switch p {
	case scheduler.PhaseRunning:
		return color.New(color.FgHiGreen).Sprint(s)
	case scheduler.PhaseSucceeded:
		return color.GreenString(s)
	case scheduler.PhaseFailed:
		return color.RedString(s)
	default:
		return color.New(color.Faint).Sprint(s)
	}
}

// StateColorize colors s by remote state.
func StateColorize(s string, state core.State) string {
	switch {
	case state == core.StateCompleted:
		return color.GreenString(s)
	case state.IsFailure():
		return color.RedString(s)
	case state.IsActive():
		return color.New(color.FgHiGreen).Sprint(s)
	default:
		return s
	}
}
