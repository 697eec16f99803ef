// Command tinyrpc-client drives one-shot and benchmark calls against a
// tinyrpc-server.
package main

import (
	"fmt"
	"os"

	"github.com/ccqqhhzy/tinyrpc/cmd/tinyrpc-client/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
