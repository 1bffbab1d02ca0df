//go:build !linux

package logger

// isTerminal reports false off Linux; color must be enabled explicitly.
func isTerminal(uintptr) bool { return false }
