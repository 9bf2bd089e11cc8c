//go:build !linux && !windows

package logger

// ioctlGetTermios is TIOCGETA on BSD-derived systems (e.g. macOS).
const ioctlGetTermios = 0x40487413
