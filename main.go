// ./main.go
package main

import (
	"github.com/xkilldash9x/lotpilot-cli/cmd"
)

// main is the entry point for the lotpilot CLI.
func main() {
	cmd.Execute()
}
