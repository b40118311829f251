package main

import "github.com/aweris/amber/cmd/amber/cmd"

func main() {
	cmd.Execute()
}
