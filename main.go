package main

import "github.com/arismoko/strudelprobe/cmd"

func main() {
	cmd.Execute()
}
