// Package image keeps the downloader's base image pinned to a digest.
//
// The pin file records `<image>@sha256:...`. Once it is older than the
// refresh window (or missing, or unpinned) the base image is pulled, its
// repository digest is resolved with `docker inspect`, and the compose service
// is rebuilt whenever the digest moved. The pin file is rewritten on every
// refresh so its modification time records the last check.
//
// Environment assembles the variables the compose project expects: the host
// identity, the download root, and the pinned digest.
package image
