package main

import (
	"os"

	"filecatalog/internal/fcatcli"
)

func main() {
	root := fcatcli.NewRootCommand()
	root.SetArgs(fcatcli.RewriteArgsForImplicitQ(root, os.Args[1:]))
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
