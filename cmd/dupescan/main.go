package main

import "dupescan/cmd/dupescan/cmd"

func main() {
	cmd.Execute()
}
