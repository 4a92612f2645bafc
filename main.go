// The main package for the fraudctl executable.
package main

import (
	"github.com/JakeFAU/fraud-detection/cmd"
)

// main defers all execution to the cobra commands.
func main() {
	cmd.Execute()
}
