// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

// atrium-replay inspects and fabricates session archives.
//
// Replay mode (default): read an archive produced by the record
// package, drive a fresh session through an in-memory engine, and
// print every application event in delivery order. Output is
// human-readable when stdout is a terminal and JSON lines otherwise;
// --json forces JSON. A roster summary is printed when the session
// ends.
//
// Synthesis mode (--synthesize): build a deterministic archive from a
// YAML scenario instead of a recorded session. Scenarios declare a
// room, a participant roster, and a timeline of steps (join, leave,
// publish, subscribe, mute, data, metadata, speakers, ...); the same
// scenario always produces a byte-identical archive, which makes the
// output suitable as a fixture.
//
// Archives may be encrypted at rest: --recipient encrypts a
// synthesized archive to an age X25519 public key, --identity decrypts
// on replay.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"filippo.io/age"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/atrium-rtc/atrium/record"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		jsonOutput  bool
		logLevel    string
		roomName    string
		identityKey string
		synthesize  string
		output      string
		compression string
		recipient   string
	)

	flagSet := pflag.NewFlagSet("atrium-replay", pflag.ContinueOnError)
	flagSet.BoolVar(&jsonOutput, "json", false, "print events as JSON lines even on a terminal")
	flagSet.StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	flagSet.StringVar(&roomName, "room", "replay", "room name for the replayed session")
	flagSet.StringVar(&identityKey, "identity", "", "age X25519 identity (AGE-SECRET-KEY-...) for encrypted archives")
	flagSet.StringVar(&synthesize, "synthesize", "", "build an archive from this scenario YAML instead of replaying")
	flagSet.StringVar(&output, "output", "", "destination file for --synthesize")
	flagSet.StringVar(&compression, "compression", "zstd", "segment compression for --synthesize: zstd, lz4, none")
	flagSet.StringVar(&recipient, "recipient", "", "age X25519 recipient (age1...) to encrypt a synthesized archive")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return 0
		}
		fmt.Fprintf(os.Stderr, "atrium-replay: %v\n", err)
		return 2
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return 0
	}

	level, err := parseLogLevel(logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "atrium-replay: %v\n", err)
		return 2
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if synthesize != "" {
		if len(flagSet.Args()) > 0 {
			fmt.Fprintf(os.Stderr, "atrium-replay: --synthesize takes no archive argument\n")
			return 2
		}
		if output == "" {
			fmt.Fprintf(os.Stderr, "atrium-replay: --synthesize requires --output\n")
			return 2
		}
		if err := runSynthesize(synthesize, output, compression, recipient); err != nil {
			fmt.Fprintf(os.Stderr, "atrium-replay: %v\n", err)
			return 1
		}
		return 0
	}

	if len(flagSet.Args()) != 1 {
		fmt.Fprintf(os.Stderr, "atrium-replay: exactly one archive argument is required (see --help)\n")
		return 2
	}
	if err := runReplay(flagSet.Args()[0], roomName, identityKey, jsonOutput, logger); err != nil {
		fmt.Fprintf(os.Stderr, "atrium-replay: %v\n", err)
		return 1
	}
	return 0
}

func runReplay(path, roomName, identityKey string, jsonOutput bool, logger *slog.Logger) error {
	var identities []age.Identity
	if identityKey != "" {
		identity, err := age.ParseX25519Identity(identityKey)
		if err != nil {
			return fmt.Errorf("parsing --identity: %w", err)
		}
		identities = append(identities, identity)
	}

	archive, err := os.Open(path)
	if err != nil {
		return err
	}
	defer archive.Close()

	reader, err := record.NewReader(archive, record.ReaderOptions{Identities: identities})
	if err != nil {
		return err
	}

	asJSON := jsonOutput || !term.IsTerminal(int(os.Stdout.Fd()))
	printer := newEventPrinter(os.Stdout, asJSON)
	return replaySession(context.Background(), reader, printer, roomName, logger)
}

func runSynthesize(scenarioPath, outputPath, compression, recipient string) error {
	scenario, err := LoadScenario(scenarioPath)
	if err != nil {
		return err
	}

	tag, err := record.ParseCompressionTag(compression)
	if err != nil {
		return err
	}

	var recipients []age.Recipient
	if recipient != "" {
		parsed, err := age.ParseX25519Recipient(recipient)
		if err != nil {
			return fmt.Errorf("parsing --recipient: %w", err)
		}
		recipients = append(recipients, parsed)
	}

	destination, err := os.Create(outputPath)
	if err != nil {
		return err
	}

	writer, err := record.NewWriter(destination, record.WriterOptions{
		Compression: tag,
		Recipients:  recipients,
	})
	if err != nil {
		destination.Close()
		return err
	}

	for i, event := range scenario.Build() {
		if err := writer.Append(event); err != nil {
			destination.Close()
			return fmt.Errorf("archiving scenario event %d: %w", i, err)
		}
	}
	if err := writer.Close(); err != nil {
		destination.Close()
		return err
	}
	return destination.Close()
}

func parseLogLevel(name string) (slog.Level, error) {
	switch name {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Replay and synthesize session archives.

Usage:
  atrium-replay [flags] <archive>
  atrium-replay --synthesize scenario.yaml --output file.arec [flags]

Examples:
  # Replay a recorded session
  atrium-replay session.arec

  # Replay an encrypted archive as JSON lines
  atrium-replay --identity AGE-SECRET-KEY-1... --json session.arec

  # Build a fixture archive from a scenario
  atrium-replay --synthesize standup.yaml --output standup.arec --compression lz4

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
