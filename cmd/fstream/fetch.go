package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/docker/go-units"
	"github.com/melbahja/got"
	"github.com/spf13/cobra"

	"github.com/nuln/fstream/internal/media"
)

func newFetchCmd(logger log.Logger) *cobra.Command {
	var (
		server      string
		kindName    string
		out         string
		concurrency uint
	)
	cmd := &cobra.Command{
		Use:   "fetch [flags] name",
		Short: "Download a media file using parallel ranged requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := media.ParseKind(kindName)
			if err != nil {
				return err
			}
			name := args[0]
			if !media.ValidName(name) {
				return fmt.Errorf("fetch: invalid filename %q", name)
			}
			if out == "" {
				out = name
			}
			url := strings.TrimRight(server, "/") + "/" + kind.Name + "/" + name

			downloader := got.New()
			downloader.Client = retryhttp.NewClient(logger).StandardClient()
			d := got.NewDownload(cmd.Context(), url, out)
			d.Concurrency = concurrency
			if err := downloader.Do(d); err != nil {
				return fmt.Errorf("fetch %s: %w", name, err)
			}

			fi, err := os.Stat(out)
			if err != nil {
				return err
			}
			logger.Donef("Fetched %s to %s (%s)", name, out, units.HumanSizeWithPrecision(float64(fi.Size()), 3))
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "server base URL")
	cmd.Flags().StringVar(&kindName, "media", media.Videos.Name, "media kind: images or videos")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (defaults to the file name)")
	cmd.Flags().UintVar(&concurrency, "concurrency", 4, "parallel range requests")
	return cmd
}
