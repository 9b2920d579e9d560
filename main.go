package main

import (
	"os"

	"portforge/cmd"
)

func main() {
	// Worker helper mode re-executes this binary inside a chroot on
	// behalf of the environment backend; it bypasses the CLI entirely.
	if len(os.Args) > 1 && os.Args[1] == "--worker-helper" {
		os.Exit(runWorkerHelper())
	}

	os.Exit(cmd.Execute())
}
