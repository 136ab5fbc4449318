package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kavon2323/vitaius-vestra/pkg/client"
)

// flag names
const (
	flagServerAddress = "server-address"
)

// environment variable names
const (
	envServerAddress = "VESTRA_SERVER_ADDRESS"
)

const defaultServerAddress = "http://localhost:8080"

var (
	// apiClient is the shared API client instance
	apiClient *client.Client
	// serverAddress holds the target API server address. Flag parsing sets this.
	serverAddress string
)

// initClient initializes the API client
func initClient() error {
	var err error
	apiClient, err = client.New(&client.Options{BaseURL: serverAddress})
	return err
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&serverAddress, flagServerAddress, "s", defaultServerAddress,
		"Address of the API server (env: VESTRA_SERVER_ADDRESS)")

	RootCmd.AddCommand(submitCmd)
	RootCmd.AddCommand(jobsCmd)
	RootCmd.AddCommand(runLocalCmd)
	RootCmd.AddCommand(stlCmd)
}

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "vestractl",
	Short: "Operator CLI for the fabrication pipeline",
	Long:  `vestractl drives the prosthetic fabrication pipeline: upload scans, submit jobs, watch status, fetch outputs, and run the geometry engine locally.`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if !cmd.Flags().Changed(flagServerAddress) {
			if envAddr := os.Getenv(envServerAddress); envAddr != "" {
				serverAddress = envAddr
			}
		}

		if serverAddress == "" {
			return fmt.Errorf("server address cannot be empty")
		}
		return initClient()
	},
}
