// The main package for the slotwatch executable.
package main

import (
	"github.com/meizi0715/bdt-v1.5/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
