// Command bspconv converts Half-Life and Source engine levels into meshes
// batched by material plus lightmap atlas images.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bspconv",
	Short: "bspconv converts BSP levels into meshes and lightmaps.",
	Long: `bspconv reads Half-Life, Xash and Source engine BSP files, triangulates
their faces into material batches and packs their lightmaps into atlas images.`,
	SilenceUsage: true,
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(initConfigCmd)
}
