// The main package for the gravyjobs executable.
package main

import "github.com/gravyjobs/gravyjobs/cmd"

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
