// Package main provides the entry point for the freq-engine CLI.
package main

import "yqhp/freq-engine/cmd"

func main() {
	cmd.Execute()
}
