// Command tinyrpc-server runs the pre-forked worker RPC server.
package main

import (
	"fmt"
	"os"

	"github.com/ccqqhhzy/tinyrpc/cmd/tinyrpc-server/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
