package main

import "github.com/emrgen/docvault/cmd"

func main() {
	cmd.Execute()
}
