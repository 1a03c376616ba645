package main

import "github.com/ptrus/mobile-pipeline/cmd"

func main() {
	cmd.Execute()
}
