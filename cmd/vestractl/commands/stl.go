package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kavon2323/vitaius-vestra/internal/stl"
)

func init() {
	stlCmd.AddCommand(stlInfoCmd)
	stlCmd.AddCommand(stlConvertCmd)
}

var stlCmd = &cobra.Command{
	Use:   "stl",
	Short: "Inspect and convert STL files",
}

var stlInfoCmd = &cobra.Command{
	Use:   "info FILE",
	Short: "Print mesh statistics for an STL file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		format := "ascii"
		if stl.IsBinary(data) {
			format = "binary"
		}

		mesh, err := stl.Decode(data)
		if err != nil {
			return err
		}

		fmt.Println("format:   ", format)
		fmt.Println("triangles:", len(mesh.Triangles))
		fmt.Println("vertices: ", len(mesh.Vertices))
		fmt.Println("size:     ", len(data), "bytes")
		return nil
	},
}

var stlConvertCmd = &cobra.Command{
	Use:   "convert IN OUT",
	Short: "Re-encode an STL file as canonical binary",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mesh, err := stl.DecodeFile(args[0])
		if err != nil {
			return err
		}
		if err := stl.EncodeFile(args[1], mesh); err != nil {
			return err
		}
		fmt.Printf("wrote %s (%d triangles)\n", args[1], len(mesh.Triangles))
		return nil
	},
}
