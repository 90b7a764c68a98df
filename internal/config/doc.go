// Package config loads, normalizes, and validates libbydl configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// AUDIOBOOK_FOLDER. The Config type centralizes every knob the CLI needs, so
// the download root, the odmpy export location, and the docker compose
// project are resolved once per invocation and passed down explicitly.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
