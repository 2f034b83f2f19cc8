package main

import "pkgrepo/internal/cli"

func main() {
	cli.Execute()
}
