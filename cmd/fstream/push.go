package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/docker/go-units"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nuln/fstream"
	"github.com/nuln/fstream/internal/chunkio"
	"github.com/nuln/fstream/internal/handler"
	"github.com/nuln/fstream/internal/media"
)

type pushOptions struct {
	server      string
	media       string
	concurrency int
	chunkSize   int
}

func newPushCmd(logger log.Logger) *cobra.Command {
	opts := pushOptions{}
	cmd := &cobra.Command{
		Use:   "push [flags] file...",
		Short: "Upload media files to a server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := media.ParseKind(opts.media)
			if err != nil {
				return err
			}
			return push(cmd.Context(), logger, opts, kind, args)
		},
	}
	cmd.Flags().StringVar(&opts.server, "server", "http://localhost:8080", "server base URL")
	cmd.Flags().StringVar(&opts.media, "media", media.Images.Name, "media kind: images or videos")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 4, "parallel uploads")
	cmd.Flags().IntVar(&opts.chunkSize, "chunk-size", fstream.DefaultChunkSize, "read chunk size in bytes")
	return cmd
}

func push(ctx context.Context, logger log.Logger, opts pushOptions, kind media.Kind, files []string) error {
	client := retryhttp.NewClient(logger)
	pool := fstream.NewIOPool(max(opts.concurrency, 1))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.concurrency, 1))
	for _, file := range files {
		g.Go(func() error {
			return pushFile(ctx, logger, client, pool, opts, kind, file)
		})
	}
	return g.Wait()
}

func pushFile(ctx context.Context, logger log.Logger, client *retryablehttp.Client, pool *fstream.IOPool, opts pushOptions, kind media.Kind, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	size := fi.Size()
	name := filepath.Base(file)
	url := strings.TrimRight(opts.server, "/") + "/" + kind.Name + "/" + name

	// Every attempt streams the file again from offset 0.
	body := retryablehttp.ReaderFunc(func() (io.Reader, error) {
		seq := fstream.StreamFileRange(fstream.NewAsyncFile(f, pool), fstream.WholeFile(size), opts.chunkSize)
		return chunkio.PipeReader(seq, pool), nil
	})
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", media.ContentType(name))
	req.ContentLength = size

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("push %s: %w", name, err)
	}
	defer resp.Body.Close()

	var status handler.UploadStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("push %s: %s: %w", name, resp.Status, err)
	}
	if resp.StatusCode != http.StatusOK || !status.Success {
		return fmt.Errorf("push %s: %s: %s", name, resp.Status, status.Error)
	}
	logger.Donef("Pushed %s (%s)", name, units.HumanSizeWithPrecision(float64(status.Size), 3))
	if status.RestartNow {
		logger.Infof("Server asked for a restart after %s", name)
	}
	return nil
}
