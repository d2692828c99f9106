package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jonesrussell/north-cloud/content-crawler/cmd"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := cmd.Execute(context.Background(), version); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
