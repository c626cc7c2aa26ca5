// Command optiq is the entry point for the image optimization CLI.
package main

import "github.com/surfgoffdude/optiq/internal/cli"

func main() {
	cli.Execute()
}
