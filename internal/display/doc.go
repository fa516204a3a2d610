// Package display renders calculation results and warnings on the terminal.
//
// It centralizes output formatting and color handling for the fvc CLI.
// Colors are applied only when the destination is a terminal; piped output
// stays plain. All functions accept io.Writer for testability.
package display
