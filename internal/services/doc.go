// Package services defines the error markers shared by the external tool
// integrations (odmpy, docker) and the orchestration layer.
//
// Wrap tags a failure with a marker and component context; ExitCode turns the
// marker into the process exit status the CLI reports. Keep new integrations on
// these markers so the exit-code contract stays in one place.
package services
