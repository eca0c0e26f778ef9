package config

import (
	"os"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
)

// ApplyLogLevel switches the shared logger to level and sends its output to
// stderr. It is called at start-up and after every reload.
func ApplyLogLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return oops.Wrapf(err, "invalid log level %q", level)
	}
	l := logger.GetGoI2PLogger()
	l.SetOutput(os.Stderr)
	l.SetLevel(logger.Level(lvl))
	log.WithFields(logger.Fields{
		"at":     "config.ApplyLogLevel",
		"reason": "log_level_applied",
		"level":  lvl.String(),
	}).Debug("applied log level")
	return nil
}
