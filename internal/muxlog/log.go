// Package muxlog centralizes the structured logging muxcore and its
// collaborators emit, grounded on distribution/distribution's use of
// github.com/sirupsen/logrus: one shared logger, per-call-site fields
// rather than printf-style messages.
package muxlog

import "github.com/sirupsen/logrus"

// Base is the package-level logger every session derives its fields from.
// Tests and embedders may reassign it (e.g. to a logrus.New() with output
// redirected to a buffer) before constructing a driver.
var Base = logrus.StandardLogger()

// ForSession returns an entry tagged with the connection id, the unit of
// context every subsequent log line in a session's lifetime carries.
func ForSession(connID uint32) *logrus.Entry {
	return Base.WithField("conn", connID)
}
