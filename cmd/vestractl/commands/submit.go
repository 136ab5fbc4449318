package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/kavon2323/vitaius-vestra/pkg/client"
)

var (
	submitFile          string
	submitInputKey      string
	submitAxis          string
	submitBaseOffsetMM  float64
	submitMoldPaddingMM float64
	submitWait          bool
)

func init() {
	submitCmd.Flags().StringVar(&submitFile, "file", "", "Local scan file to upload and submit")
	submitCmd.Flags().StringVar(&submitInputKey, "input-key", "", "Store key of an already uploaded scan")
	submitCmd.Flags().StringVar(&submitAxis, "axis", "X", "Mirror axis (X, Y, or Z)")
	submitCmd.Flags().Float64Var(&submitBaseOffsetMM, "base-offset-mm", 2.0, "Base offset in millimeters")
	submitCmd.Flags().Float64Var(&submitMoldPaddingMM, "mold-padding-mm", 10.0, "Mold padding in millimeters")
	submitCmd.Flags().BoolVar(&submitWait, "wait", false, "Poll until the job reaches a terminal state")
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Upload a scan and create a fabrication job",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if (submitFile == "") == (submitInputKey == "") {
			return fmt.Errorf("exactly one of --file or --input-key is required")
		}

		ctx := context.Background()
		inputKey := submitInputKey

		if submitFile != "" {
			data, err := os.ReadFile(submitFile)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", submitFile, err)
			}

			cred, err := apiClient.CreateUploadURL(ctx, client.UploadURLRequest{
				Filename: filepath.Base(submitFile),
			})
			if err != nil {
				return fmt.Errorf("failed to get upload credential: %w", err)
			}

			if err := apiClient.UploadFile(ctx, cred, data); err != nil {
				return err
			}
			inputKey = cred.S3Key
			fmt.Println("Uploaded scan as", inputKey)
		}

		resp, err := apiClient.CreateJob(ctx, client.CreateJobRequest{
			S3Key:         inputKey,
			Axis:          submitAxis,
			BaseOffsetMM:  &submitBaseOffsetMM,
			MoldPaddingMM: &submitMoldPaddingMM,
		})
		if err != nil {
			return fmt.Errorf("failed to create job: %w", err)
		}

		fmt.Printf("Job %s created (%s)\n", resp.ID, resp.Status)

		if !submitWait {
			return nil
		}

		j, err := apiClient.WaitForJob(ctx, resp.ID, 2*time.Second)
		if err != nil {
			return err
		}
		printJob(j)
		return nil
	},
}
