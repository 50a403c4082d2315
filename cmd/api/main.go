package main

import (
	"context"
	"os"

	"clientflow/api/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
