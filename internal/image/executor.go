package image

import (
	"context"
	"io"
	"os/exec"
)

// Command describes one docker invocation.
type Command struct {
	Binary string
	Args   []string
	Dir    string
	Env    []string
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, cmd Command, stdout, stderr io.Writer) error
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, c Command, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, c.Binary, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = c.Env
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}
