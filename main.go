package main

import "github.com/kalshi-entropy-feed/internal/cli"

func main() {
	cli.Execute()
}
