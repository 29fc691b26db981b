// Package config loads and validates photosync configuration.
//
// Configuration comes from a TOML file (default ~/.config/photosync/config.toml)
// layered over repository defaults. Load applies normalization (path expansion,
// env-var fallbacks, zero-value defaulting) before validation so downstream
// packages always see absolute paths and in-range values.
package config
