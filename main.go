// Package main is the entry point for the shaker fuzzer.
package main

import "shaker.dev/pkg/shaker/cmd"

func main() {
	cmd.Execute()
}
