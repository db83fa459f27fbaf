package main

import (
	"os"

	"github.com/cdtdelta/oci-audit-csv/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
