package main

import "github.com/vietddude/calldispatch/internal/cli"

func main() {
	cli.Execute()
}
