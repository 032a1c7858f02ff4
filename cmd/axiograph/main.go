// Command axiograph is the thin CLI entry point over the PathDB core:
// promoting canonical modules, committing overlay ops, running AxQL
// queries, issuing certificates, syncing snapshot stores, and serving
// the HTTP adapter (§6, §1 "CLI is out of primary scope but required so
// the core has a runnable entry point").
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/axiograph/axiograph/internal/snapshotstore"
)

var storeRoot string
var configPath string

var rootCmd = &cobra.Command{
	Use:   "axiograph",
	Short: "axiograph - typed graph database CLI",
	Long:  `Promote modules, commit overlay ops, run AxQL queries, and issue certificates against a PathDB snapshot store.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storeRoot, "store", "./axiograph-data", "snapshot store root directory")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to .axiograph.toml (defaults to AXIOGRAPH_ env vars and built-in defaults)")
}

func openStore() (*snapshotstore.Store, error) {
	return snapshotstore.Open(storeRoot)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
