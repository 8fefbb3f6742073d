package main

import (
	"jsonrest/internal/app"
	"jsonrest/internal/platform/logger"
)

func main() {
	application, err := app.New()
	if err != nil {
		panic(err)
	}
	if err := application.Run(); err != nil {
		logger.Fatal(application.Logger(), "probe service failed", "error", err)
	}
	_ = logger.Close(application.Logger())
}
