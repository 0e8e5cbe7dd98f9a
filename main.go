package main

import "github.com/sw33tLie/jobscope/cmd"

func main() {
	cmd.Execute()
}
