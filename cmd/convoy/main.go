package main

import "convoy/internal/cmd"

func main() {
	cmd.Execute()
}
