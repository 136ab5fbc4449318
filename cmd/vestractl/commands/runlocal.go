package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kavon2323/vitaius-vestra/internal/engine"
	"github.com/kavon2323/vitaius-vestra/internal/job"
	"github.com/kavon2323/vitaius-vestra/shared/logger"
)

var (
	runLocalInput         string
	runLocalChestWall     string
	runLocalAxis          string
	runLocalBaseOffsetMM  float64
	runLocalMoldPaddingMM float64
	runLocalOutProsthetic string
	runLocalOutMold       string
	runLocalBin           string
	runLocalScript        string
	runLocalTimeout       time.Duration
)

func init() {
	runLocalCmd.Flags().StringVar(&runLocalInput, "input", "", "Input scan STL path")
	runLocalCmd.Flags().StringVar(&runLocalChestWall, "chest-wall", "", "Optional chest-wall reference mesh")
	runLocalCmd.Flags().StringVar(&runLocalAxis, "axis", "X", "Mirror axis (X, Y, or Z)")
	runLocalCmd.Flags().Float64Var(&runLocalBaseOffsetMM, "base-offset-mm", 2.0, "Base offset in millimeters")
	runLocalCmd.Flags().Float64Var(&runLocalMoldPaddingMM, "mold-padding-mm", 10.0, "Mold padding in millimeters")
	runLocalCmd.Flags().StringVar(&runLocalOutProsthetic, "out-prosthetic", "prosthetic.stl", "Output path for the fitted prosthetic")
	runLocalCmd.Flags().StringVar(&runLocalOutMold, "out-mold", "mold.stl", "Output path for the mold")
	runLocalCmd.Flags().StringVar(&runLocalBin, "engine-bin", "", "Engine binary (default: BLENDER_BIN env or 'blender')")
	runLocalCmd.Flags().StringVar(&runLocalScript, "engine-script", "", "Engine process script (default: PROCESS_SCRIPT env)")
	runLocalCmd.Flags().DurationVar(&runLocalTimeout, "timeout", 0, "Engine deadline (0 = unbounded)")
	_ = runLocalCmd.MarkFlagRequired("input")
}

var runLocalCmd = &cobra.Command{
	Use:   "run-local",
	Short: "Run the geometry engine synchronously on a local file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if _, err := os.Stat(runLocalInput); err != nil {
			return fmt.Errorf("input not found: %s", runLocalInput)
		}

		axis, err := job.ParseAxis(runLocalAxis)
		if err != nil {
			return err
		}

		bin := runLocalBin
		if bin == "" {
			bin = os.Getenv("BLENDER_BIN")
		}
		if bin == "" {
			bin = "blender"
		}
		script := runLocalScript
		if script == "" {
			script = os.Getenv("PROCESS_SCRIPT")
		}
		if script == "" {
			return fmt.Errorf("engine script is required (--engine-script or PROCESS_SCRIPT)")
		}

		ctx := context.Background()
		if runLocalTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, runLocalTimeout)
			defer cancel()
		}

		runner := engine.NewBlenderRunner(bin, script, logger.NewDefault().Logger)
		err = runner.Transform(ctx, engine.TransformRequest{
			InputPath:      runLocalInput,
			Axis:           axis,
			BaseOffsetMM:   runLocalBaseOffsetMM,
			MoldPaddingMM:  runLocalMoldPaddingMM,
			ChestWallPath:  runLocalChestWall,
			ProstheticPath: runLocalOutProsthetic,
			MoldPath:       runLocalOutMold,
		})
		if err != nil {
			return err
		}

		fmt.Println("prosthetic:", runLocalOutProsthetic)
		fmt.Println("mold:      ", runLocalOutMold)
		return nil
	},
}
