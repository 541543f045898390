package main

import "github.com/clawplaza/clawlink/internal/cmd"

func main() {
	cmd.Execute()
}
