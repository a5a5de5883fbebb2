package main

import "github.com/kozaktomas/deface/cmd"

func main() {
	cmd.Execute()
}
