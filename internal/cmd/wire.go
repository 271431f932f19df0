package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/pflag"
	"google.golang.org/api/option"

	"github.com/tomasbasham/drive-uploader/internal/config"
	"github.com/tomasbasham/drive-uploader/internal/credential"
	"github.com/tomasbasham/drive-uploader/internal/notify"
	"github.com/tomasbasham/drive-uploader/internal/operation"
	"github.com/tomasbasham/drive-uploader/internal/sheets"
	"github.com/tomasbasham/drive-uploader/internal/storage"
	"github.com/tomasbasham/drive-uploader/internal/upload"
)

// configFlags are shared by every command that talks to a backend.
type configFlags struct {
	ConfigFile string
	EnvFile    string
	Backend    string
}

func (f *configFlags) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&f.ConfigFile, "config", "c", "", "YAML configuration file")
	fs.StringVar(&f.EnvFile, "env-file", "", "dotenv file loaded into the environment")
	fs.StringVarP(&f.Backend, "backend", "b", "", "Storage backend: drive, gcs or local (overrides UPLOAD_BACKEND)")
}

// load builds the configuration with the flag values applied as the highest
// precedence source. port is zero when the command has no --port flag.
func (f *configFlags) load(port int) (*config.Config, error) {
	return config.Load(config.Options{
		File:    f.ConfigFile,
		EnvFile: f.EnvFile,
		Port:    port,
		Backend: f.Backend,
	})
}

func newLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, nil))
}

// requiredScopes lists the OAuth scopes the configured features need. An
// empty result means no credential is loaded.
func requiredScopes(cfg *config.Config) []string {
	var scopes []string
	switch cfg.Backend {
	case config.BackendDrive:
		scopes = append(scopes, storage.DriveScope)
	case config.BackendGCS:
		scopes = append(scopes, storage.GCSScope)
	}
	if cfg.SheetEnabled() {
		scopes = append(scopes, sheets.ReadOnlyScope)
	}
	return scopes
}

// buildOrchestrator loads the credential and constructs every collaborator.
// The returned cleanup releases backend clients.
func buildOrchestrator(ctx context.Context, cfg *config.Config, store operation.Store, logger *slog.Logger) (*upload.Orchestrator, func(), error) {
	var clientOpts []option.ClientOption
	if scopes := requiredScopes(cfg); len(scopes) > 0 {
		cred, err := credential.Load(ctx, credential.SourceFrom(cfg.Credential), scopes...)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("loaded service account", slog.String("email", cred.Email()), slog.Any("scopes", cred.Scopes()))
		clientOpts = cred.ClientOptions()
	}

	uploader, cleanup, err := buildUploader(ctx, cfg, clientOpts)
	if err != nil {
		return nil, nil, err
	}

	var sheet upload.SheetSource
	if cfg.SheetEnabled() {
		reader, err := sheets.NewGoogleReader(ctx, clientOpts...)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		sheet = upload.SheetSource{Reader: reader, ID: cfg.Sheet.ID, Range: cfg.Sheet.Range}
	} else {
		logger.Info("no SHEET_ID configured; table reads disabled")
	}

	notifier, err := buildNotifier(cfg, nil)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if _, ok := notifier.(notify.Nop); ok {
		logger.Info("TELEGRAM_BOT_TOKEN or TELEGRAM_CHAT_ID not set; notifications disabled")
	}

	o := upload.New(upload.Options{
		Uploader: uploader,
		Backend:  cfg.Backend,
		Folder:   cfg.UploadFolder(),
		Sheet:    sheet,
		Notifier: notifier,
		Store:    store,
		Logger:   logger,
	})
	return o, cleanup, nil
}

func buildUploader(ctx context.Context, cfg *config.Config, opts []option.ClientOption) (storage.Uploader, func(), error) {
	noop := func() {}

	switch cfg.Backend {
	case config.BackendDrive:
		u, err := storage.NewDriveUploader(ctx, storage.LinkStyle(cfg.Drive.LinkStyle), opts...)
		if err != nil {
			return nil, nil, err
		}
		return u, noop, nil
	case config.BackendGCS:
		u, err := storage.NewGCSUploader(ctx, cfg.GCS.Bucket, opts...)
		if err != nil {
			return nil, nil, err
		}
		return u, func() { _ = u.Close() }, nil
	case config.BackendLocal:
		u, err := storage.NewLocalUploader(cfg.Local.Path)
		if err != nil {
			return nil, nil, err
		}
		return u, noop, nil
	}
	return nil, nil, config.Errorf("UPLOAD_BACKEND", "unknown backend %q", cfg.Backend)
}

// buildNotifier returns notify.Nop unless both Telegram settings are present.
func buildNotifier(cfg *config.Config, client *http.Client) (notify.Notifier, error) {
	if !cfg.NotificationEnabled() {
		return notify.Nop{}, nil
	}
	t, err := notify.NewTelegram(client, cfg.Telegram.APIURL, cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	if err != nil {
		return nil, &config.Error{Field: "TELEGRAM_BOT_TOKEN", Err: err}
	}
	return t, nil
}

func listenAddr(port int) string {
	return fmt.Sprintf(":%d", port)
}
