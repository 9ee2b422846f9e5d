package main

import (
	"context"
	"fmt"
	"os"

	"orctorrent/internal/app"
)

var version = "dev"

func main() {
	a, err := app.New(context.Background(), version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "orcd: %v\n", err)
		os.Exit(1)
	}

	if err := a.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "orcd: %v\n", err)
		os.Exit(1)
	}
}
