package main

import (
	"github.com/flightdrop/flightdrop/internal/cli"
	"github.com/flightdrop/flightdrop/internal/logging"
)

func main() {
	logging.Init()
	cli.Execute()
}
