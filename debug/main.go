package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/emrgen/docvault/internal/config"
	"github.com/emrgen/docvault/internal/server"
)

// runs the server in insecure mode with debug logging
func main() {
	os.Setenv("DOCVAULT_AUTH_INSECURE", "true")
	cfg := config.LoadConfig()
	cfg.Log.Level = logrus.DebugLevel.String()

	if err := server.Start(cfg); err != nil {
		logrus.Fatal(err)
	}
}
