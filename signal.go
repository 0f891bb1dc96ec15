// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// interruptChannel is used to receive SIGINT (Ctrl+C) signals.
var interruptChannel chan os.Signal

// addHandlerChannel is used to add an interrupt handler to the list of handlers
// to be invoked on SIGINT (Ctrl+C) signals.
var addHandlerChannel = make(chan func())

// signals defines the signals that are handled to do a clean shutdown.
var signals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// mainInterruptHandler listens for SIGINT (Ctrl+C) signals on the
// interruptChannel and invokes the registered interruptCallbacks accordingly.
// It also listens for callback registration.  It must be run as a goroutine.
func mainInterruptHandler() {
	// interruptCallbacks is a list of callbacks to invoke when a
	// SIGINT (Ctrl+C) is received.
	var interruptCallbacks []func()
	invokeCallbacks := func() {
		// run handlers in LIFO order.
		for i := range interruptCallbacks {
			idx := len(interruptCallbacks) - 1 - i
			interruptCallbacks[idx]()
		}
	}

	shuttingDown := false
	for {
		select {
		case sig := <-interruptChannel:
			// A second signal while the callbacks run forces the
			// process down.
			if shuttingDown {
				log.Infof("Received signal (%s) while shutting "+
					"down.  Exiting immediately.", sig)
				os.Exit(1)
			}
			shuttingDown = true

			log.Infof("Received signal (%s).  Shutting down...", sig)
			go invokeCallbacks()

		case handler := <-addHandlerChannel:
			if shuttingDown {
				go handler()
				continue
			}
			interruptCallbacks = append(interruptCallbacks, handler)
		}
	}
}

// addInterruptHandler adds a handler to call when a SIGINT (Ctrl+C) is
// received.
func addInterruptHandler(handler func()) {
	// Create the channel and start the main interrupt handler which invokes
	// all other callbacks and exits if not already done.
	if interruptChannel == nil {
		interruptChannel = make(chan os.Signal, 1)
		signal.Notify(interruptChannel, signals...)
		go mainInterruptHandler()
	}

	addHandlerChannel <- handler
}

// interruptContext returns a context that is cancelled once an interrupt is
// received.
func interruptContext(parent context.Context) (context.Context,
	context.CancelFunc) {

	ctx, cancel := context.WithCancel(parent)
	addInterruptHandler(cancel)
	return ctx, cancel
}
