// Package output provides formatters for displaying probe results.
//
// Supported output formats:
//   - Console: Human-readable colored terminal output with diagnostic hints
//   - JSON: Machine-readable JSON output
package output
