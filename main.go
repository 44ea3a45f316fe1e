package main

import "github.com/aceteam-ai/dream-cli/cmd"

func main() {
	cmd.Execute()
}
