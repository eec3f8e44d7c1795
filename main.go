package main

import "github.com/sentinelsweep/sweep-cli/cmd"

var execCmd = cmd.Execute

func main() {
	execCmd()
}
