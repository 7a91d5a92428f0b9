// Package cli holds the pixelbatch cobra commands.
package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

type rootOptions struct {
	configPath string
}

func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "pixelbatch",
		Short: "Batch image resizing, conversion and compression",
		Long: `pixelbatch resizes, converts and compresses batches of images.

Each file goes through resize, background removal, filters, watermarks
and metadata handling, and batches of more than one file are bundled
into resized_images.zip.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file (default ./config.yaml)")
	root.SetVersionTemplate(fmt.Sprintf(
		"pixelbatch %s (%s/%s, %s)\n",
		version, runtime.GOOS, runtime.GOARCH, runtime.Version(),
	))

	root.AddCommand(
		newServeCommand(opts),
		newProcessCommand(opts),
		newHistoryCommand(opts),
		newTokenCommand(opts),
	)
	return root
}

func Execute() error {
	return NewRootCommand().Execute()
}
