// Package deps checks for the external binaries libbydl shells out to.
package deps
