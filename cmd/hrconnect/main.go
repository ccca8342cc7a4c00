// Command hrconnect tracks the connection status of external services.
package main

import (
	"os"

	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/cmd/hrconnect/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
