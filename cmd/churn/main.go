package main

import (
	"github.com/mchmarny/churnscore/pkg/cli"
)

func main() {
	cli.Execute()
}
