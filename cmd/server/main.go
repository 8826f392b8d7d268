package main

import (
	"creative-dispatch/internal/app/server"
	"creative-dispatch/internal/config"
)

func main() {
	cfg := config.Load()
	config.SetupLogging(cfg.Server.LogLevel, cfg.Server.LogFormat)
	server.Run(cfg)
}
