// Package main implements the slipway CLI tool.
// It reconciles declarative deployment manifests against cloud projects.
package main

import "github.com/slipway/slipway/cmd/slipway/cmd"

func main() {
	cmd.Execute()
}
