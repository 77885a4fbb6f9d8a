package main

import "CyberHygiene/pkg/cli"

func main() {
	cli.Execute()
}
