package main

import (
	"fmt"
	"os"

	"github.com/n9te9/graphql-gateway/server"
	"github.com/spf13/cobra"
)

const version = "v0.1.0"

func main() {
	var configPath string

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the gateway version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("graphql-gateway %s\n", version)
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter gateway config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return server.Init(configPath)
		},
	}
	initCmd.Flags().StringVarP(&configPath, "config", "c", "gateway.yaml", "path to write the config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return server.Run(configPath)
		},
	}
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "gateway.yaml", "path to the gateway config file")

	rootCmd := &cobra.Command{
		Use:           "gateway",
		Short:         "A programmable GraphQL gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
