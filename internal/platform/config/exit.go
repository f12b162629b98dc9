package config

import (
	"fmt"
	"io"
	"os"
)

var exitFunc = os.Exit

var stderr io.Writer = os.Stderr

// Exitf writes a formatted error message to stderr and exits with code 1.
func Exitf(format string, args ...any) {
	fmt.Fprintf(stderr, format+"\n", args...)
	exitFunc(1)
}
