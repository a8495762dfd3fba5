package main

import (
	"embed"

	"github.com/sirupsen/logrus"

	"video-transcriber/internal/bootstrap"
)

//go:embed frontend/index.html
var appAssets embed.FS

func main() {
	app, err := bootstrap.NewWithAssets(appAssets)
	if err != nil {
		logrus.WithError(err).Fatal("bootstrap app")
	}

	if err := app.Run(); err != nil {
		app.Log.WithError(err).Fatal("run app")
	}
}
