package main

import (
	"github.com/OFFIS-RIT/crosscheck/internal/server"
	"github.com/OFFIS-RIT/crosscheck/internal/util"
	"github.com/OFFIS-RIT/crosscheck/pkg/logger"
	"github.com/OFFIS-RIT/crosscheck/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: util.GetEnvBool("DEBUG", false),
		JSON:  util.GetEnvString("LOG_FORMAT", "text") == "json",
	})
	logger.Init(consoleLogger)

	server.Init()
}
