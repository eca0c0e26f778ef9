// Package util holds small process-level helpers shared by the command and
// the library packages.
package util

import (
	"os"

	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// UserHome returns the current user's home directory, falling back to
// $HOME, %USERPROFILE% and finally the working directory.
func UserHome() string {
	homeDir, err := os.UserHomeDir()
	if err == nil {
		return homeDir
	}
	for _, env := range []string{"HOME", "USERPROFILE"} {
		if home := os.Getenv(env); home != "" {
			log.WithFields(logger.Fields{
				"at":       "util.UserHome",
				"reason":   "home_dir_lookup_failed",
				"fallback": env,
				"error":    err.Error(),
			}).Warn("using environment for home directory")
			return home
		}
	}
	wd, wdErr := os.Getwd()
	if wdErr != nil {
		panic("apitransport: unable to determine home directory; set $HOME")
	}
	log.WithFields(logger.Fields{
		"at":       "util.UserHome",
		"reason":   "home_dir_lookup_failed",
		"fallback": "working_dir",
		"error":    err.Error(),
	}).Warn("using working directory as home directory")
	return wd
}
