// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the ternbridge CLI.
package ux

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette is the Aleutian teal scheme, shared with the other Aleutian CLIs.
var (
	ColorTeal     = lipgloss.Color("#2CD7C7")
	ColorTealDeep = lipgloss.Color("#16858E")
	ColorSlate    = lipgloss.Color("#2C4A54")
	ColorAmber    = lipgloss.Color("#F4D03F")
	ColorRed      = lipgloss.Color("#E74C3C")
)

const (
	boxWidth       = 72
	statusRuleMark = "│"
)

// Styles are the lipgloss styles the printer renders with.
var Styles = struct {
	Title     lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Highlight lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Box       lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTeal),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Highlight: lipgloss.NewStyle().Bold(true).Foreground(ColorTeal),
	Success:   lipgloss.NewStyle().Foreground(ColorTeal),
	Warning:   lipgloss.NewStyle().Foreground(ColorAmber),
	Error:     lipgloss.NewStyle().Foreground(ColorRed),
	Box:       lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(ColorTealDeep).Padding(0, 1),
}

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
)

// Render colors the glyph to match its status.
func (i Icon) Render() string {
	return statusKinds[i].style.Render(string(i))
}

// statusKind is how one kind of status line looks at each level.
type statusKind struct {
	style  lipgloss.Style
	prefix string // machine-mode prefix
	toErr  bool   // machine mode writes to Err
}

var statusKinds = map[Icon]statusKind{
	IconSuccess: {style: Styles.Success, prefix: "OK: "},
	IconWarning: {style: Styles.Warning, prefix: "WARN: ", toErr: true},
	IconError:   {style: Styles.Error, prefix: "ERROR: ", toErr: true},
}

// =============================================================================
// PRINTER
// =============================================================================

// Printer writes styled output. Results go to Out. In machine mode warnings
// and errors go to Err so a script reading Out only sees results.
type Printer struct {
	Out io.Writer
	Err io.Writer
}

func (p *Printer) level() PersonalityLevel {
	return GetPersonality().Level
}

func (p *Printer) status(icon Icon, text string) {
	kind := statusKinds[icon]
	switch p.level() {
	case PersonalityMachine:
		w := p.Out
		if kind.toErr {
			w = p.Err
		}
		fmt.Fprintln(w, kind.prefix+text)
	case PersonalityMinimal:
		fmt.Fprintln(p.Out, string(icon)+" "+text)
	default:
		fmt.Fprintln(p.Out, icon.Render()+" "+kind.style.Render(text))
	}
}

// Success reports a completed action, such as a written config file.
func (p *Printer) Success(text string) { p.status(IconSuccess, text) }

// Warning reports something the user may want to fix.
func (p *Printer) Warning(text string) { p.status(IconWarning, text) }

// Error reports a failure, such as Tern failing to start.
func (p *Printer) Error(text string) { p.status(IconError, text) }

// Info prints a plain status line.
func (p *Printer) Info(text string) {
	if p.level() == PersonalityMachine {
		fmt.Fprintln(p.Out, text)
		return
	}
	fmt.Fprintln(p.Out, Styles.Muted.Render(statusRuleMark)+" "+text)
}

// Box prints content in a rounded box under an optional title. Machine mode
// prints "title: content".
func (p *Printer) Box(title, content string) {
	if p.level() == PersonalityMachine {
		if title != "" {
			content = title + ": " + content
		}
		fmt.Fprintln(p.Out, content)
		return
	}
	if title != "" {
		content = Styles.Title.Render(title) + "\n" + content
	}
	fmt.Fprintln(p.Out, Styles.Box.Width(boxWidth).Render(content))
}

// =============================================================================
// EDITOR RESULTS
// =============================================================================

// CompletionRow is one parsed "|name|type|\tdoc" completion line.
type CompletionRow struct {
	Name string
	Type string
	Doc  string
}

// ParseCompletions splits a completion list into rows. Types may contain
// "|", names may not.
func ParseCompletions(items string) []CompletionRow {
	if items == "" {
		return nil
	}
	lines := strings.Split(items, "\n")
	rows := make([]CompletionRow, 0, len(lines))
	for _, line := range lines {
		head, doc, _ := strings.Cut(line, "\t")
		head = strings.TrimSuffix(strings.TrimPrefix(head, "|"), "|")
		name, typ, _ := strings.Cut(head, "|")
		rows = append(rows, CompletionRow{Name: name, Type: typ, Doc: doc})
	}
	return rows
}

// Completions prints a completion list. Machine mode prints
// "name\ttype\tdoc" per row.
func (p *Printer) Completions(items string) {
	rows := ParseCompletions(items)
	if p.level() == PersonalityMachine {
		for _, r := range rows {
			fmt.Fprintf(p.Out, "%s\t%s\t%s\n", r.Name, r.Type, r.Doc)
		}
		return
	}

	width := 0
	for _, r := range rows {
		width = max(width, lipgloss.Width(r.Name))
	}
	for _, r := range rows {
		line := Styles.Highlight.Render(r.Name) + strings.Repeat(" ", width-lipgloss.Width(r.Name))
		if r.Type != "" {
			line += "  " + Styles.Muted.Render(r.Type)
		}
		if r.Doc != "" {
			line += "  " + r.Doc
		}
		fmt.Fprintln(p.Out, line)
	}
}

// Menu prints numbered items under a title, numbering from 1.
func (p *Printer) Menu(title string, items []string) {
	if p.level() == PersonalityMachine {
		for _, item := range items {
			fmt.Fprintln(p.Out, item)
		}
		return
	}
	fmt.Fprintln(p.Out, Styles.Title.Render(title))
	for i, item := range items {
		fmt.Fprintf(p.Out, "  %s %s\n", Styles.Muted.Render(fmt.Sprintf("%2d", i+1)), item)
	}
}
