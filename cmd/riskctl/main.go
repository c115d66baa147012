// Command riskctl runs the risk engine and the scenario pipeline from the
// shell, against the same configuration and backends as the service.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
