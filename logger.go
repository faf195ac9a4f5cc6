package dvbstc

import "github.com/asticode/go-astikit"

// Right now we use a global logger because it feels weird to inject a logger
// into the pure section decoders. It's only needed to let the developer know
// when a driver call fails, an acquisition wait times out, or the tuner
// reports a status other than locked. Discarded sections are not logged.
var logger = astikit.AdaptStdLogger(nil)

// SetLogger redirects package-level logging to l. Pass nil to silence it.
func SetLogger(l astikit.StdLogger) { logger = astikit.AdaptStdLogger(l) }
