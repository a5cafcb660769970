// cmd/rag-assistant/main.go
package main

import (
	"fmt"
	"os"

	"rag-assistant/internal/common/config"

	"github.com/spf13/cobra"
)

func main() {
	var cfgPath string
	root := &cobra.Command{
		Use:           "rag-assistant",
		Short:         "Retrieval-augmented question answering over scraped websites",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default configs/config.yaml)")

	load := func() (*config.Config, error) {
		if cfgPath != "" {
			return config.LoadFromFile(cfgPath)
		}
		return config.Load()
	}

	root.AddCommand(serveCmd(load), ingestCmd(load))
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
