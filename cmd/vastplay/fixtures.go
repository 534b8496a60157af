// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/luxfi/vastplayer/internal/testing/vastserver"
	"github.com/luxfi/vastplayer/pkg/log"
)

var (
	fixturesAddr  string
	fixturesDepth int
	fixturesName  string
)

var fixturesCmd = &cobra.Command{
	Use:   "fixtures",
	Short: "Serve fixture VAST documents for local testing",
	Long: `Serves an inline fixture ad behind a chain of wrappers and records
every tracking pixel it receives. Point "vastplay play" at the printed URL.`,
	Args: cobra.NoArgs,
	RunE: runFixtures,
}

func init() {
	fixturesCmd.Flags().StringVar(&fixturesAddr, "addr", "127.0.0.1:8090", "listen address")
	fixturesCmd.Flags().IntVar(&fixturesDepth, "depth", 2, "number of wrappers in front of the inline ad")
	fixturesCmd.Flags().StringVar(&fixturesName, "name", "demo", "fixture ad name")
	rootCmd.AddCommand(fixturesCmd)
}

func runFixtures(cmd *cobra.Command, _ []string) error {
	ln, err := net.Listen("tcp", fixturesAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	fixtures := vastserver.NewHandler("http://" + ln.Addr().String())
	entry, err := fixtures.Chain(fixturesName, fixturesDepth)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to build fixtures: %w", err)
	}

	srv := &http.Server{Handler: fixtures, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()

	cmd.Printf("serving fixtures on %s\n", ln.Addr())
	cmd.Printf("entry: %s\n", entry)
	logger.Info("fixture server started", log.String("addr", ln.Addr().String()), log.Int("depth", fixturesDepth))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	hits := fixtures.Hits()
	cmd.Printf("%d pixel hit(s)\n", len(hits))
	for _, h := range hits {
		cmd.Println("  " + h)
	}
	return nil
}
