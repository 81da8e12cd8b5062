// Command observer validates, schedules and runs test plans against a
// bench of connected devices, and reports on stored runs.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Hoorsana/Observer-2/internal/cli"
)

func main() {
	err := cli.NewRootCommand().ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
