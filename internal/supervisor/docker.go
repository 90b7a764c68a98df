package supervisor

import (
	"context"
	"os/exec"
	"strconv"

	"libbydl/internal/libby"
	"libbydl/internal/shelf"
)

// ComposeSettings locates the docker compose project that runs the downloader.
type ComposeSettings struct {
	DockerBinary string
	ComposeDir   string
	Service      string
	// Env is the complete environment handed to docker compose.
	Env []string
}

// ComposeArgs returns the docker arguments for one book.
func ComposeArgs(service string, layout shelf.Layout, book libby.Book) []string {
	return []string{
		"compose", "run", "--rm", service,
		"-s=" + strconv.Itoa(book.SiteID),
		"-i=" + book.ID,
		"-n=" + layout.FinalSubpath(book.ID),
		"-r",
	}
}

// ComposeCommand builds a CommandFunc that runs the downloader service via
// `docker compose run`.
func ComposeCommand(settings ComposeSettings, layout shelf.Layout) CommandFunc {
	return func(ctx context.Context, book libby.Book) *exec.Cmd {
		cmd := exec.CommandContext(ctx, settings.DockerBinary, ComposeArgs(settings.Service, layout, book)...)
		cmd.Dir = settings.ComposeDir
		if len(settings.Env) > 0 {
			cmd.Env = append([]string(nil), settings.Env...)
		}
		return cmd
	}
}
