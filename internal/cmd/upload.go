package cmd

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/tomasbasham/drive-uploader/internal/config"
	"github.com/tomasbasham/drive-uploader/internal/operation"
	"github.com/tomasbasham/drive-uploader/internal/upload"
)

type UploadOptions struct {
	cfg *config.Config

	Paths []string
	configFlags

	iooption.IOStreams
}

var (
	uploadLong = templates.LongDesc(`
		Upload local files with the same backend, spreadsheet and notification
		settings as the server. Files are uploaded in the order given and the
		first failure stops the run.`)

	uploadExample = templates.Examples(`
		# Upload a report to the configured Drive folder
		uploader upload report.pdf

		# Upload several files to the local filesystem backend
		uploader upload --backend local a.png b.png`)
)

func NewUploadOptions(streams iooption.IOStreams) *UploadOptions {
	return &UploadOptions{
		IOStreams: streams,
	}
}

func NewUploadCommand(o *UploadOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "upload FILE...",
		DisableFlagsInUseLine: true,
		Short:                 "Upload local files and print their links",
		Long:                  uploadLong,
		Example:               uploadExample,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(); err != nil {
				return err
			}
			if err := o.Run(); err != nil {
				return err
			}
			return nil
		},
	}

	o.configFlags.addFlags(cmd.Flags())

	return cmd
}

func (o *UploadOptions) Complete(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("at least one FILE is required")
	}
	o.Paths = args

	cfg, err := o.configFlags.load(0)
	if err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}

func (o *UploadOptions) Validate() error {
	for _, p := range o.Paths {
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("cannot upload %s: %w", p, err)
		}
		if info.IsDir() {
			return fmt.Errorf("cannot upload %s: is a directory", p)
		}
	}
	return nil
}

func (o *UploadOptions) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orchestrator, cleanup, err := buildOrchestrator(ctx, o.cfg, operation.NewMemoryStore(1), newLogger(io.Discard))
	if err != nil {
		return err
	}
	defer cleanup()

	files := make([]upload.File, 0, len(o.Paths))
	for _, p := range o.Paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}
		files = append(files, upload.File{
			Name:        filepath.Base(p),
			ContentType: contentType(p, data),
			Data:        data,
		})
	}

	fmt.Fprintf(o.Out, "Uploading %d file(s) to %s...\n", len(files), o.cfg.Backend)
	result, err := orchestrator.HandleUpload(ctx, files)
	if err != nil {
		return err
	}

	for _, f := range result.Files {
		fmt.Fprintf(o.Out, "%s\t%s\n", f.Name, f.Link)
	}
	for _, row := range result.Table {
		fmt.Fprintln(o.Out, row)
	}
	return nil
}

func contentType(path string, data []byte) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}
