package main

import "os"

// shutdownSignals lists the OS signals that trigger graceful shutdown.
// signals_unix.go adds SIGTERM.
var shutdownSignals = []os.Signal{os.Interrupt}
