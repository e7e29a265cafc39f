// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeranaias/docchat/internal/client"
	"github.com/jeranaias/docchat/internal/ui/styles"
	"github.com/jeranaias/docchat/internal/upload"
)

func newUploadCmd(a *app) *cobra.Command {
	var watchDir string

	cmd := &cobra.Command{
		Use:   "upload [FILE...]",
		Short: "Upload documents through the proxy",
		Long: `Upload documents so they can be asked about.

Only allowed file types are sent (upload.allowed_extensions, .pdf by
default). With --watch, documents created or rewritten in DIR are
uploaded once they stop changing; existing files are left alone.`,
		Example: `  $ docchat upload report.pdf minutes.pdf
  $ docchat upload --watch ~/Documents/inbox`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.newClient()
			switch {
			case watchDir != "" && len(args) > 0:
				return errors.New("give files or --watch, not both")
			case watchDir != "":
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return a.watchUploads(ctx, c, watchDir, cmd.OutOrStdout())
			case len(args) == 0:
				return errors.New("no files given")
			}
			return a.uploadFiles(cmd.Context(), c, args, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&watchDir, "watch", "", "watch `DIR` and upload new documents")
	return cmd
}

// uploadFiles sends the acceptable files in one request. Rejected files
// are listed and make the command fail after the rest are sent.
func (a *app) uploadFiles(ctx context.Context, c *client.Client, paths []string, out, errOut io.Writer) error {
	accepted, rejected := upload.Collect(paths, a.cfg.Upload)
	for _, r := range rejected {
		fmt.Fprintln(errOut, errorStyle.Render(styles.Indicator(styles.StatusIndicators.Warning, r.String())))
	}
	if len(accepted) == 0 {
		return errors.New("nothing to upload")
	}

	res, err := c.Upload(ctx, accepted)
	if err != nil {
		return err
	}
	printUploadResult(out, res)

	if len(rejected) > 0 {
		return errReported
	}
	return nil
}

// watchUploads runs a folder watcher until ctx is done.
func (a *app) watchUploads(ctx context.Context, c *client.Client, dir string, out io.Writer) error {
	w, err := upload.NewWatcher(dir, a.cfg.Upload, func(ctx context.Context, paths []string) error {
		res, err := c.Upload(ctx, paths)
		if err != nil {
			return err
		}
		printUploadResult(out, res)
		return nil
	})
	if err != nil {
		return err
	}
	if err := w.Watch(); err != nil {
		w.Close()
		return err
	}

	fmt.Fprintf(out, "%s %s %s\n", successStyle.Render("Watching"), dir, mutedStyle.Render("(Ctrl+C to stop)"))
	<-ctx.Done()
	return w.Close()
}

func printUploadResult(out io.Writer, res *client.UploadResult) {
	fmt.Fprintln(out, successStyle.Render(styles.Indicator(styles.StatusIndicators.Success, res.Message)))
	for _, name := range res.Files {
		fmt.Fprintln(out, "  "+name)
	}
}
