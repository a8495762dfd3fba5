// Command app starts the desktop window serving the frontend from ./frontend
// on disk, for working on the page without rebuilding.
package main

import (
	"github.com/sirupsen/logrus"

	"video-transcriber/internal/bootstrap"
)

func main() {
	app, err := bootstrap.New()
	if err != nil {
		logrus.WithError(err).Fatal("bootstrap app")
	}

	if err := app.Run(); err != nil {
		app.Log.WithError(err).Fatal("run app")
	}
}
