// trashctl is the operator CLI for the purge queue.
//
// Usage:
//
//	trashctl scan             # run the trash scan now and print what it queued
//	trashctl scan --enqueue   # queue the scan for the workers instead
//	trashctl tasks --status pending
//	trashctl failures --limit 20
//	trashctl cancel purge-file-65f0c0ffee0000000000beef
//	trashctl drain --max 100  # process due tasks in this process
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(mongoOpener).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
