package cmd

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/tomasbasham/drive-uploader/internal/config"
	"github.com/tomasbasham/drive-uploader/internal/operation"
	"github.com/tomasbasham/drive-uploader/internal/server"
)

type ServeOptions struct {
	cfg *config.Config

	Port int
	configFlags

	iooption.IOStreams
}

var (
	serveLong = templates.LongDesc(`
		Start the upload HTTP server.

		Configuration is read from the environment (optionally seeded from a
		dotenv file) and an optional YAML file. A missing or invalid service
		account stops the server before it accepts any request.`)

	serveExample = templates.Examples(`
		# Start on the default port, uploading to Google Drive
		uploader serve

		# Start on a custom port with settings from a dotenv file
		uploader serve --port 9090 --env-file .env

		# Write uploads to the local filesystem
		LOCAL_STORAGE_PATH=/tmp/uploads uploader serve --backend local`)
)

func NewServeOptions(streams iooption.IOStreams) *ServeOptions {
	return &ServeOptions{
		IOStreams: streams,
	}
}

func NewServeCommand(o *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Start the upload HTTP server",
		Long:    serveLong,
		Example: serveExample,
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

	cmd.Flags().IntVarP(&o.Port, "port", "p", 0, "Port to listen on (default: PORT or 8080)")
	o.configFlags.addFlags(cmd.Flags())

	return cmd
}

func (o *ServeOptions) Complete(cmd *cobra.Command, args []string) error {
	cfg, err := o.configFlags.load(o.Port)
	if err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}

func (o *ServeOptions) Validate() error {
	return o.cfg.Validate()
}

func (o *ServeOptions) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := newLogger(o.ErrOut)

	orchestrator, cleanup, err := buildOrchestrator(ctx, o.cfg, operation.NewMemoryStore(o.cfg.History), logger)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := server.New(orchestrator, logger)

	addr := listenAddr(o.cfg.Port)
	logger.Info("starting upload server",
		slog.String("addr", addr),
		slog.String("backend", o.cfg.Backend),
	)
	return srv.ListenAndServe(ctx, addr)
}
