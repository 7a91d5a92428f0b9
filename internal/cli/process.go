package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dunamismax/pixelbatch/internal/config"
	"github.com/dunamismax/pixelbatch/internal/domain"
	applog "github.com/dunamismax/pixelbatch/internal/log"
	"github.com/dunamismax/pixelbatch/internal/pipeline"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

type processOptions struct {
	req     domain.TransformRequest
	archive string
}

func newProcessCommand(root *rootOptions) *cobra.Command {
	opts := &processOptions{}
	cmd := &cobra.Command{
		Use:   "process <file>...",
		Short: "Process image files locally",
		Long: `Runs the given files through the same pipeline as the HTTP API.

Outputs are written below the configured output directory. When more than
one file is given the zip archive is also copied to --archive.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			return runProcess(cmd, cfg, opts, args)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.req.Width, "width", "W", 0, "target width in pixels")
	f.IntVarP(&opts.req.Height, "height", "H", 0, "target height in pixels")
	f.BoolVar(&opts.req.LockAspect, "lock-aspect", false, "derive the missing dimension from the source aspect ratio")
	f.StringVar(&opts.req.ResizeMode, "mode", domain.ResizeStretch, "resize mode: stretch, crop, fit or pad")
	f.StringVarP(&opts.req.Format, "format", "f", domain.DefaultFormat, "output format")
	f.IntVarP(&opts.req.Quality, "quality", "q", domain.DefaultQuality, "encoder quality 1-100")
	f.StringVar(&opts.req.Prefix, "prefix", "", "output filename prefix")
	f.StringVar(&opts.req.Preset, "preset", "", "named size preset")
	f.StringVar(&opts.req.Filter, "filter", domain.FilterNone, "filter: none, grayscale, sepia, blur or sharpen")
	f.BoolVar(&opts.req.RemoveBackground, "remove-bg", false, "remove the background")
	f.StringVar(&opts.req.WatermarkPath, "watermark", "", "watermark image path")
	f.StringVar(&opts.req.WatermarkText, "watermark-text", "", "watermark text")
	f.BoolVar(&opts.req.StripMetadata, "strip-metadata", false, "drop EXIF and other metadata")
	f.BoolVar(&opts.req.CompressOnly, "compress-only", false, "re-encode at the source size")
	f.StringVar(&opts.req.UserID, "user", "", "user id recorded in history")
	f.StringVarP(&opts.archive, "archive", "o", pipeline.ArchiveName, "where to copy the archive for multi-file runs")
	return cmd
}

func runProcess(cmd *cobra.Command, cfg config.Config, opts *processOptions, paths []string) error {
	logger := applog.NewWithWriter(cfg.Environment, cmd.ErrOrStderr())
	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	files := make([]pipeline.SourceFile, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		files = append(files, pipeline.SourceFile{Name: filepath.Base(path), Data: data})
	}

	out, err := a.coordinator.Run(cmd.Context(), files, opts.req)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for _, res := range out.Results {
		if !res.Success() {
			fmt.Fprintf(w, "FAIL  %s: %s\n", res.OriginalName, res.Reason)
			continue
		}
		fmt.Fprintf(w, "OK    %s -> %s (%dx%d, %s)\n",
			res.OriginalName, res.OutputPath, res.Width, res.Height, humanize.IBytes(uint64(res.Bytes)))
	}

	if out.Archive != nil && opts.archive != "" {
		if err := os.WriteFile(opts.archive, out.Archive, 0o644); err != nil {
			return fmt.Errorf("write archive: %w", err)
		}
		fmt.Fprintf(w, "archive %s (%s)\n", opts.archive, humanize.IBytes(uint64(len(out.Archive))))
	}

	if out.Successes() == 0 {
		return errors.New("no file was processed successfully")
	}
	return nil
}
