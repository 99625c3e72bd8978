package main

import "github.com/vietddude/ingester/internal/cli"

func main() {
	cli.Execute()
}
