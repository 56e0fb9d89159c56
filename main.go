package main

import (
	"os"

	"github.com/Ananth-NQI/salonbook-backend/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
