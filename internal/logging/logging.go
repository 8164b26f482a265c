// Package logging is a thin wrapper around the standard logger with a
// global kill switch so CLI one-shot commands can run quietly.
package logging

import (
	"log"
	"os"
)

var (
	disabled = false
	logger   = log.New(os.Stderr, "", log.LstdFlags)
)

// Disable turns off all logging.
func Disable() {
	disabled = true
}

// Enable turns logging back on.
func Enable() {
	disabled = false
}

// Infof logs a formatted info message.
func Infof(format string, v ...any) {
	if !disabled {
		logger.Printf("INFO "+format, v...)
	}
}

// Warnf logs a formatted warning message.
func Warnf(format string, v ...any) {
	if !disabled {
		logger.Printf("WARN "+format, v...)
	}
}

// Errorf logs a formatted error message.
func Errorf(format string, v ...any) {
	if !disabled {
		logger.Printf("ERROR "+format, v...)
	}
}

// Debugf logs a formatted debug message.
func Debugf(format string, v ...any) {
	if !disabled {
		logger.Printf("DEBUG "+format, v...)
	}
}

// Component returns a logger that prefixes every line with [name].
type Component string

func (c Component) Infof(format string, v ...any)  { Infof("["+string(c)+"] "+format, v...) }
func (c Component) Warnf(format string, v ...any)  { Warnf("["+string(c)+"] "+format, v...) }
func (c Component) Errorf(format string, v ...any) { Errorf("["+string(c)+"] "+format, v...) }
func (c Component) Debugf(format string, v ...any) { Debugf("["+string(c)+"] "+format, v...) }
