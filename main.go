package main

import "github.com/soniclab/midicap/cmd"

func main() {
	cmd.Execute()
}
