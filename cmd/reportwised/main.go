package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reportwise-ai/reportwise/config"
	srv "github.com/reportwise-ai/reportwise/internal/server"
)

func main() {
	root := &cobra.Command{Use: "reportwised", Short: "Knowledge query engine daemon"}
	root.AddCommand(serveCMD())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCMD() *cobra.Command {
	var cfgPath string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return srv.Run(cfg)
		},
	}
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return serve
}
