// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"os"
	"strings"
	"sync/atomic"

	"github.com/mattn/go-isatty"
)

// PersonalityLevel is how much decoration terminal output carries.
type PersonalityLevel string

const (
	// PersonalityStandard is colored, with icons and boxes.
	PersonalityStandard PersonalityLevel = "standard"

	// PersonalityMinimal keeps icons but drops color and boxes.
	PersonalityMinimal PersonalityLevel = "minimal"

	// PersonalityMachine is undecorated, tab-separated text for editors and
	// scripts. Warnings and errors go to the error stream.
	PersonalityMachine PersonalityLevel = "machine"
)

// outputEnv overrides terminal detection when no flag is given.
const outputEnv = "TERNBRIDGE_OUTPUT"

// Personality is the process-wide output setting.
type Personality struct {
	Level PersonalityLevel
}

var currentLevel atomic.Value

func init() {
	currentLevel.Store(PersonalityStandard)
}

// GetPersonality returns the current output setting.
func GetPersonality() Personality {
	return Personality{Level: currentLevel.Load().(PersonalityLevel)}
}

// SetPersonalityLevel replaces the current output level.
func SetPersonalityLevel(level PersonalityLevel) {
	currentLevel.Store(level)
}

// ParsePersonalityLevel maps a flag or env value onto a level. Unknown
// values mean standard.
func ParsePersonalityLevel(s string) PersonalityLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "machine", "plain", "quiet", "q":
		return PersonalityMachine
	case "minimal", "min", "m":
		return PersonalityMinimal
	}
	return PersonalityStandard
}

// InitPersonality sets the level from the --output flag value, then
// TERNBRIDGE_OUTPUT, then stdout: piped output is machine output.
func InitPersonality(flag string) {
	switch {
	case flag != "":
		SetPersonalityLevel(ParsePersonalityLevel(flag))
	case os.Getenv(outputEnv) != "":
		SetPersonalityLevel(ParsePersonalityLevel(os.Getenv(outputEnv)))
	case !isTerminal(os.Stdout):
		SetPersonalityLevel(PersonalityMachine)
	default:
		SetPersonalityLevel(PersonalityStandard)
	}
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// IsInteractive reports whether a menu can be shown and answered: both
// ends are terminals and output is not in machine mode.
func IsInteractive() bool {
	if GetPersonality().Level == PersonalityMachine {
		return false
	}
	return isTerminal(os.Stdin) && isTerminal(os.Stdout)
}
