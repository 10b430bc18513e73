package main

import (
	"fmt"
	"runtime"

	"github.com/racetagger/pipeline/internal/prepare"
)

func printBuildInfo() {
	fmt.Printf("Go version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	if prepare.RawSupported() {
		fmt.Printf("RAW support: enabled (%s)\n", prepare.LibRawImplementation())
	} else {
		fmt.Println("RAW support: disabled (embedded-preview fallback only)")
	}
}
