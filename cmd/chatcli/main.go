package main

import "clanchat/internal/cli"

func main() {
	cli.Execute()
}
