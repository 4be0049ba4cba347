package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "\033[91m[ FAIL ]\033[0m", err)
		os.Exit(1)
	}
}
