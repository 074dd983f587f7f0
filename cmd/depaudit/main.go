// # cmd/depaudit/main.go
package main

import (
	"os"

	"depaudit/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
