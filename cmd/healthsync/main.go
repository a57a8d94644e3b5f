package main

import (
	"log"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Printf("healthsync: %v", err)
		os.Exit(1)
	}
}
