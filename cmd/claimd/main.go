package main

import (
	"log"

	"payvault/services/claimd"
)

func main() {
	if err := claimd.Main(); err != nil {
		log.Fatalf("claimd: %v", err)
	}
}
