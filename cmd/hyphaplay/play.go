package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/mycophonic/hypha/engine"
	"github.com/mycophonic/hypha/hyphacfg"
)

func playCommand() *cli.Command {
	return &cli.Command{
		Name:      "play",
		Usage:     "Play a single audio file to the default (or selected) output device",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to a TOML config file (optional)"},
			&cli.IntFlag{Name: "sample-rate", Usage: "output config sample rate (0 = config/default); Play replaces it with the source file's rate"},
			&cli.IntFlag{Name: "buffer-frames", Usage: "device buffer size in frames (0 = config/default)"},
			&cli.BoolFlag{Name: "no-exclusive", Usage: "disable hog (exclusive) mode"},
			&cli.BoolFlag{Name: "no-integer-mode", Usage: "allow Float32 device formats"},
			&cli.BoolFlag{Name: "no-hal", Usage: "force the mixer-routed fallback output"},
			&cli.IntFlag{Name: "device", Value: -1, Usage: "output device ID (-1 = default device)"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "suppress info-level logs"},
		},
		Action: runPlay,
	}
}

func runPlay(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return fmt.Errorf("%w: got %d", errInvalidArgCount, cmd.NArg())
	}

	log := newLogger(cmd.Bool("quiet"))

	cfg, err := hyphacfg.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	var exclusive, integerMode, useHAL *bool

	for name, dst := range map[string]**bool{"no-exclusive": &exclusive, "no-integer-mode": &integerMode, "no-hal": &useHAL} {
		if cmd.IsSet(name) {
			v := !cmd.Bool(name)
			*dst = &v
		}
	}

	deviceID := int64(cmd.Int("device"))

	cfg = hyphacfg.ApplyFlagOverrides(
		cfg,
		uint32(cmd.Int("sample-rate")),
		uint32(cmd.Int("buffer-frames")),
		exclusive, integerMode, useHAL,
		deviceID,
	)

	e := engine.New(cfg, engine.WithLogger(log))

	path := cmd.Args().First()
	if err := e.Play(path); err != nil {
		return fmt.Errorf("playing %s: %w", path, err)
	}

	return runTransport(ctx, e, log)
}

// runTransport drives the interactive session: space toggles pause, q or
// Ctrl-C stops, and the engine's own Events channel ends the loop once
// the track finishes playing out. Stdin is read as-is, not switched to
// raw mode, so a key reaches the loop once the terminal passes the line
// on; a stdin read error silently ends key input, and the loop keeps
// waiting for the track to finish, a signal, or ctx cancellation.
func runTransport(ctx context.Context, e *engine.Engine, log zerolog.Logger) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	keyCh := make(chan byte, 8)

	go readKeys(keyCh)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return e.Stop()

		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("stopping")

			return e.Stop()

		case key := <-keyCh:
			switch key {
			case ' ':
				togglePause(e, log)
			case 'q', 3: // 3 = Ctrl-C when stdin isn't a signal-delivering tty
				return e.Stop()
			}

		case evt := <-e.Events:
			if evt.Kind == engine.TrackFinished {
				log.Info().Msg("track finished")

				return e.Stop()
			}

		case <-ticker.C:
			s := e.Stats()
			log.Debug().
				Float64("position_secs", s.PositionSecs).
				Float64("fill_ratio", s.BufferFillRatio).
				Uint64("underruns", s.UnderrunCount).
				Msg("playback stats")
		}
	}
}

func togglePause(e *engine.Engine, log zerolog.Logger) {
	switch e.State() {
	case engine.Playing:
		if err := e.Pause(); err != nil {
			log.Warn().Err(err).Msg("pause failed")
		}
	case engine.Paused:
		if err := e.Resume(); err != nil {
			log.Warn().Err(err).Msg("resume failed")
		}
	}
}

// readKeys streams raw bytes from stdin into ch. Left unbuffered at the
// line level is fine here: the CLI only ever looks at single control
// bytes, and a user typing a filename at this prompt isn't a supported
// flow.
func readKeys(ch chan<- byte) {
	reader := bufio.NewReader(os.Stdin)

	for {
		b, err := reader.ReadByte()
		if err != nil {
			return
		}

		ch <- b
	}
}

func newLogger(quiet bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if quiet {
		level = zerolog.WarnLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
}
