package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cliflag "github.com/tomasbasham/cli-runtime/flag"
	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/printer"
	"github.com/tomasbasham/cli-runtime/templates"
)

var (
	rootLong = templates.LongDesc(`
		Upload files to Google Drive (or Cloud Storage, or a local
		directory), optionally reading a Google Sheet range and posting a
		Telegram notification for every upload.`)

	rootExamples = templates.Examples(`
		# Run the HTTP server
		uploader serve

		# Upload a file from the command line
		uploader upload report.pdf`)

	// Injected at build time using ldflags.
	version = ""
	commit  = ""
)

// UploaderOptions defines the options for the `uploader` command.
type UploaderOptions struct {
	iooption.IOStreams
}

// NewUploaderOptions provides an initialised UploaderOptions instance.
func NewUploaderOptions(streams iooption.IOStreams) *UploaderOptions {
	return &UploaderOptions{
		IOStreams: streams,
	}
}

// NewRootCommand creates the `uploader` command with default arguments.
func NewRootCommand() *cobra.Command {
	options := NewUploaderOptions(iooption.IOStreams{
		In:     os.Stdin,
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	})

	return NewRootCommandWithArgs(options)
}

// NewRootCommandWithArgs creates the `uploader` command and its nested
// children.
func NewRootCommandWithArgs(o *UploaderOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "uploader [command]",
		Version:               versionInfo(),
		DisableFlagsInUseLine: true,
		Short:                 "File upload relay for Google Drive",
		Long:                  rootLong,
		Example:               rootExamples,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}

	printerOpts := printer.WarningPrinterOptions{Color: true}
	printer := printer.NewWarningPrinter(o.ErrOut, printerOpts)
	cmd.SetGlobalNormalizationFunc(cliflag.WarnWordSepNormalizeFunc(printer))

	cmd.AddCommand(NewServeCommand(NewServeOptions(o.IOStreams)))
	cmd.AddCommand(NewUploadCommand(NewUploadOptions(o.IOStreams)))

	return cmd
}

func versionInfo() string {
	if version == "" {
		return ""
	}
	return fmt.Sprintf("%s (commit: %s)", version, commit)
}
