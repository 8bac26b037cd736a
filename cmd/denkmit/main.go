package main

import "github.com/denkmit/denkmit/internal/cli"

func main() {
	cli.Execute()
}
