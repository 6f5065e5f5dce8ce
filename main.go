package main

import "flacsweep/cmd"

func main() {
	cmd.Execute()
}
