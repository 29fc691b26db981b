// Package logging wires log/slog with console and JSON handlers plus typed
// attribute helpers shared across photosync components.
package logging
