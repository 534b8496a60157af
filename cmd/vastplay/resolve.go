// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/luxfi/vastplayer/pkg/vast"
)

var (
	resolveTimeout time.Duration
	resolveDepth   int
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [url]",
	Short: "Resolve a VAST tag and print the merged ad",
	Long: `Follows the wrapper chain starting at url and prints the merged ad
together with the media file the configured capabilities would play.`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().DurationVar(&resolveTimeout, "timeout", 0, "bound on the whole resolution (default from VASTPLAYER_LOAD_TIMEOUT)")
	resolveCmd.Flags().IntVar(&resolveDepth, "max-wrappers", 0, "maximum wrapper depth (default from VASTPLAYER_MAX_WRAPPER_DEPTH)")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	resolver := newResolver()

	model, err := resolver.Resolve(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("resolve failed (%s, code %d): %w", vast.KindOf(err), vast.KindOf(err).Code(), err)
	}

	out := struct {
		Model *vast.Model     `json:"model"`
		Media *vast.MediaFile `json:"media,omitempty"`
	}{Model: model}
	if media, ok := vast.SelectMediaFile(model.MediaFiles(), resolver.Capabilities()); ok {
		out.Media = &media
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ad: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

// newResolver builds a resolver from the environment and command flags.
func newResolver() *vast.Resolver {
	opts := cfg.ResolverOptions(logger, nil)
	if resolveTimeout > 0 {
		opts = append(opts, vast.WithLoadTimeout(resolveTimeout))
	}
	if resolveDepth > 0 {
		opts = append(opts, vast.WithMaxWrapperDepth(resolveDepth))
	}
	return vast.NewResolver(cfg.Fetcher(), opts...)
}
