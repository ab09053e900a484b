package main

import "split-harness-go/cmd/harness/cmd"

func main() {
	cmd.Execute()
}
