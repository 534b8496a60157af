// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/luxfi/vastplayer/pkg/log"
	"github.com/luxfi/vastplayer/pkg/player"
	"github.com/luxfi/vastplayer/pkg/tracking"
	"github.com/luxfi/vastplayer/pkg/transport"
	"github.com/luxfi/vastplayer/pkg/vast"
)

var (
	playStep     time.Duration
	playTick     time.Duration
	playPauseAt  time.Duration
	playDuration time.Duration
	playSend     bool
	playClick    bool
)

var playCmd = &cobra.Command{
	Use:   "play [url]",
	Short: "Play a VAST ad through a simulated renderer",
	Long: `Loads the ad at url and plays it through a renderer that advances a
simulated clock, printing every tracking URL the player fires. With --send
the URLs are also requested.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlay,
}

func init() {
	f := playCmd.Flags()
	f.DurationVar(&playStep, "step", time.Second, "media time advanced per progress report")
	f.DurationVar(&playTick, "tick", 0, "wall time between progress reports")
	f.DurationVar(&playPauseAt, "pause-at", 0, "pause and resume once at this position")
	f.DurationVar(&playDuration, "duration", 30*time.Second, "media duration when the ad does not declare one")
	f.BoolVar(&playSend, "send", false, "request tracking URLs instead of only printing them")
	f.BoolVar(&playClick, "click", false, "click the ad after it completes")
	f.DurationVar(&resolveTimeout, "timeout", 0, "bound on the whole resolution (default from VASTPLAYER_LOAD_TIMEOUT)")
	f.IntVar(&resolveDepth, "max-wrappers", 0, "maximum wrapper depth (default from VASTPLAYER_MAX_WRAPPER_DEPTH)")
	rootCmd.AddCommand(playCmd)
}

// simRenderer stands in for a media pipeline and prints what it is asked
// to do.
type simRenderer struct {
	cmd *cobra.Command
}

func (r simRenderer) Load(media vast.MediaFile) error {
	r.cmd.Printf("renderer: load %s (%s %dx%d)\n", media.URL, media.MIMEType, media.Width, media.Height)
	return nil
}

func (r simRenderer) Play()  { r.cmd.Println("renderer: play") }
func (r simRenderer) Pause() { r.cmd.Println("renderer: pause") }
func (r simRenderer) Stop()  { r.cmd.Println("renderer: stop") }

func runPlay(cmd *cobra.Command, args []string) error {
	if playStep <= 0 {
		return errors.New("--step must be positive")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var dispatcher tracking.Dispatcher = tracking.Discard
	if playSend {
		pixels := transport.NewPixelDispatcher(cfg.PixelConfig(), &http.Client{}, logger, nil)
		defer pixels.Close()
		dispatcher = pixels
	}
	printer := tracking.DispatcherFunc(func(url string) {
		cmd.Printf("track: %s\n", url)
		dispatcher.Dispatch(url)
	})

	notes := make(chan string, 8)
	var (
		loaded *vast.Model
		failed error
	)
	observer := player.ObserverFuncs{
		OnFinishedLoading: func(m *vast.Model, _ vast.MediaFile) {
			loaded = m
			notes <- "loaded"
		},
		OnFailedLoading: func(err error) {
			failed = err
			notes <- "failed"
		},
		OnStartedPlaying: func() { notes <- "started" },
		OnPaused:         func() { notes <- "paused" },
		OnCompleted:      func() { notes <- "completed" },
	}

	p := player.New(newResolver(), simRenderer{cmd: cmd}, printer,
		player.WithObserver(observer),
		player.WithLogger(logger.With(log.String("component", "player"))))
	defer p.Close()

	wait := func(want string) error {
		select {
		case got := <-notes:
			if got == "failed" {
				kind := vast.KindOf(failed)
				return fmt.Errorf("ad failed (%s, code %d): %w", kind, kind.Code(), failed)
			}
			if got != want {
				return fmt.Errorf("expected %s, player reported %s", want, got)
			}
			return nil
		case <-ctx.Done():
			p.Stop()
			return ctx.Err()
		}
	}

	if err := p.Load(ctx, args[0]); err != nil {
		return err
	}
	if err := wait("loaded"); err != nil {
		return err
	}

	duration := loaded.Duration()
	if duration <= 0 {
		duration = playDuration
	}
	cmd.Printf("loaded %q: %s, %d wrapper(s)\n", loaded.AdTitle(), duration, loaded.WrapperDepth())

	if err := p.Play(); err != nil {
		return err
	}
	p.FirstFrame()
	if err := wait("started"); err != nil {
		return err
	}

	paused := false
	for pos := playStep; pos < duration; pos += playStep {
		if !paused && playPauseAt > 0 && pos >= playPauseAt {
			paused = true
			if err := p.Pause(); err != nil {
				return err
			}
			if err := wait("paused"); err != nil {
				return err
			}
			if err := p.Play(); err != nil {
				return err
			}
		}
		p.Progress(pos, duration)
		if playTick > 0 {
			select {
			case <-time.After(playTick):
			case <-ctx.Done():
				p.Stop()
				return ctx.Err()
			}
		}
	}

	p.Ended()
	if err := wait("completed"); err != nil {
		return err
	}

	if playClick {
		if url, ok := p.Click(); ok {
			cmd.Printf("click-through: %s\n", url)
		}
	}
	p.Stop()
	return nil
}
