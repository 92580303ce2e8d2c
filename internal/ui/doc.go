// Package ui styles terminal output with lipgloss.
//
// [Palette] holds the few styles the CLI uses: titles, success and error markers, warnings, and dim helper text.
// [Default] is the palette commands print with; [Plain] renders without color for tests and non-TTY output.
package ui
