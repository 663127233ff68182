package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

var Log = logrus.New()

// Setup configures the shared logger. Dev mode logs human readable text at
// debug level, everything else logs JSON at info level.
func Setup(devMode bool) {
	Log.Out = os.Stdout

	if devMode {
		Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		Log.SetLevel(logrus.DebugLevel)
		return
	}

	Log.SetFormatter(&logrus.JSONFormatter{})
	Log.SetLevel(logrus.InfoLevel)
}
