package main

import "github.com/splax/unhazzle/internal/cli"

func main() {
	cli.Execute()
}
