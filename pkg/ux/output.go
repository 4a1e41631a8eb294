// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal output styling for the webdemo CLI.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Palette.
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Icon is a status marker.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
)

// styles holds the lipgloss styles bound to one renderer.
type styles struct {
	title   lipgloss.Style
	muted   lipgloss.Style
	key     lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	err     lipgloss.Style
	box     lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title:   r.NewStyle().Bold(true).Foreground(ColorTealBright),
		muted:   r.NewStyle().Foreground(ColorSlate),
		key:     r.NewStyle().Foreground(ColorTealPrimary),
		success: r.NewStyle().Foreground(ColorSuccess),
		warning: r.NewStyle().Foreground(ColorWarning),
		err:     r.NewStyle().Foreground(ColorError),
		box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorTealDeep).
			Padding(0, 1),
	}
}

// Printer writes styled lines to a writer. When the writer is not a
// terminal it writes plain text: no colors, no boxes.
type Printer struct {
	w     io.Writer
	plain bool
	s     styles
}

// NewPrinter returns a Printer for w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{
		w:     w,
		plain: !IsTerminal(w),
		s:     newStyles(lipgloss.NewRenderer(w)),
	}
}

// IsTerminal reports whether w is an *os.File attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Plain reports whether styling is disabled.
func (p *Printer) Plain() bool { return p.plain }

func (p *Printer) render(style lipgloss.Style, text string) string {
	if p.plain {
		return text
	}
	return style.Render(text)
}

// Title prints a heading.
func (p *Printer) Title(text string) {
	fmt.Fprintln(p.w, p.render(p.s.title, text))
}

// Success prints a line marked with IconSuccess.
func (p *Printer) Success(format string, args ...any) {
	p.status(IconSuccess, p.s.success, format, args...)
}

// Warning prints a line marked with IconWarning.
func (p *Printer) Warning(format string, args ...any) {
	p.status(IconWarning, p.s.warning, format, args...)
}

// Error prints a line marked with IconError.
func (p *Printer) Error(format string, args ...any) {
	p.status(IconError, p.s.err, format, args...)
}

func (p *Printer) status(icon Icon, style lipgloss.Style, format string, args ...any) {
	fmt.Fprintf(p.w, "%s %s\n", p.render(style, string(icon)), fmt.Sprintf(format, args...))
}

// Field prints an indented "key: value" line. Empty values print as "-".
func (p *Printer) Field(key, value string) {
	if value == "" {
		value = p.render(p.s.muted, "-")
	}
	fmt.Fprintf(p.w, "  %s %s\n", p.render(p.s.key, key+":"), value)
}

// Box prints lines inside a rounded border, or indented when plain.
func (p *Printer) Box(lines ...string) {
	if p.plain {
		for _, l := range lines {
			fmt.Fprintf(p.w, "  %s %s\n", IconArrow, l)
		}
		return
	}
	fmt.Fprintln(p.w, p.s.box.Render(strings.Join(lines, "\n")))
}
