// Package libby reads account data produced by the odmpy export tool.
//
// Client runs `odmpy libby --exportloans|--exportcards <file>` and parses the
// resulting JSON into Books (active loans) and Cards (linked library cards).
// A non-zero export is surfaced as services.ErrExternalTool so the caller can
// abort the whole invocation.
package libby
