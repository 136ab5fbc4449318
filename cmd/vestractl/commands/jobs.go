package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kavon2323/vitaius-vestra/pkg/client"
)

var (
	jobsID        string
	watchInterval time.Duration
)

func init() {
	jobsCmd.AddCommand(getJobCmd)
	jobsCmd.AddCommand(watchJobCmd)
	jobsCmd.AddCommand(downloadsCmd)

	getJobCmd.Flags().StringVarP(&jobsID, "id", "i", "", "Job ID to fetch")
	_ = getJobCmd.MarkFlagRequired("id")

	watchJobCmd.Flags().StringVarP(&jobsID, "id", "i", "", "Job ID to watch")
	watchJobCmd.Flags().DurationVar(&watchInterval, "interval", 2*time.Second, "Poll interval")
	_ = watchJobCmd.MarkFlagRequired("id")

	downloadsCmd.Flags().StringVarP(&jobsID, "id", "i", "", "Job ID to fetch downloads for")
	_ = downloadsCmd.MarkFlagRequired("id")
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect fabrication jobs",
}

var getJobCmd = &cobra.Command{
	Use:   "get",
	Short: "Fetch a job record",
	RunE: func(cmd *cobra.Command, _ []string) error {
		j, err := apiClient.GetJob(context.Background(), jobsID)
		if err != nil {
			return fmt.Errorf("error fetching job: %w", err)
		}
		printJob(j)
		return nil
	},
}

var watchJobCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll a job until it reaches done or failed, printing transitions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := context.Background()
		lastStatus := ""

		for {
			j, err := apiClient.GetJob(ctx, jobsID)
			if err != nil {
				return fmt.Errorf("error fetching job: %w", err)
			}

			if j.Status != lastStatus {
				fmt.Printf("%s  %s\n", time.Now().Format(time.TimeOnly), j.Status)
				lastStatus = j.Status
			}
			if j.Terminal() {
				printJob(j)
				return nil
			}

			time.Sleep(watchInterval)
		}
	},
}

var downloadsCmd = &cobra.Command{
	Use:   "downloads",
	Short: "Print signed download URLs for a finished job",
	RunE: func(cmd *cobra.Command, _ []string) error {
		d, err := apiClient.GetDownloads(context.Background(), jobsID)
		if err != nil {
			return fmt.Errorf("error fetching downloads: %w", err)
		}
		fmt.Println("prosthetic:", d.Prosthetic)
		fmt.Println("mold:      ", d.Mold)
		fmt.Printf("expires in %d seconds\n", d.ExpiresSec)
		return nil
	},
}

func printJob(j *client.Job) {
	fmt.Println("id:        ", j.ID)
	fmt.Println("status:    ", j.Status)
	fmt.Println("input_key: ", j.InputKey)
	fmt.Printf("params:     axis=%s base_offset_mm=%g mold_padding_mm=%g\n",
		j.Params.Axis, j.Params.BaseOffsetMM, j.Params.MoldPaddingMM)
	if len(j.OutputKeys) > 0 {
		for role, key := range j.OutputKeys {
			fmt.Printf("output:     %s -> %s\n", role, key)
		}
	}
	if j.Error != nil {
		fmt.Println("error:     ", *j.Error)
	}
}
