// The main package for the shufersal-scraper executable.
package main

import (
	"github.com/JakeFAU/shufersal-scraper/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
