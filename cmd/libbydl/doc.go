// Command libbydl downloads the audiobooks currently on loan in Libby.
//
// Each `libbydl run` exports the active loans with odmpy, works out which
// books still lack audio in the download root, and runs the containerized
// odmpy-ng downloader for each of them in turn. Books that stop making
// progress are marked bad and skipped until `libbydl unmark` clears them.
// Other subcommands preview the backlog, show attempt history, maintain the
// downloader's library configuration, and manage the TOML settings file.
package main
