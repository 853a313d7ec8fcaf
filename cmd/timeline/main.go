package main

import (
	"context"
	"os"

	"github.com/palamut62/ai-gant-news/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
