package platform

import "os"

// Windows console apps only reliably receive Ctrl+C
var shutdownSignals = []os.Signal{os.Interrupt}
