// Package main provides the entry point for the pumpcache CLI.
package main

import (
	"github.com/colthorp/pumpcache-go/internal/cli"
)

func main() {
	cli.Execute()
}
