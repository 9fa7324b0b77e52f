package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/casestudy-backend/internal/capture"
	"github.com/yungbote/casestudy-backend/internal/platform/logger"
	"github.com/yungbote/casestudy-backend/internal/platform/shutdown"
	"github.com/yungbote/casestudy-backend/internal/transcription/audiostream"
	"github.com/yungbote/casestudy-backend/internal/transcription/speakerid"
)

type options struct {
	server        string
	sessionID     string
	input         string
	sampleRate    int
	channels      int
	realtime      bool
	chunkInterval time.Duration
	logMode       string
	speakers      []string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Stream a case-study discussion to live transcription",
		Long: `Streams discussion audio to the transcription provider, names speakers as the
discussion goes, and posts transcript chunks to the processing server.

Audio is 16-bit PCM, either a WAV file or raw little-endian samples, read from
--input or stdin. Press Ctrl+C to end the discussion; the remaining transcript
and the full transcript are posted before exit.

Example:
  arecord -f S16_LE -r 16000 -c 1 -t raw | capture --session <id>
  capture --session <id> --input discussion.wav --realtime --speaker 1=Alice`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.server, "server", envOr("CAPTURE_SERVER_URL", "http://localhost:8080"), "processing server base URL")
	f.StringVar(&opts.sessionID, "session", "", "session id")
	f.StringVarP(&opts.input, "input", "i", "-", "audio file (WAV or raw s16le PCM); - reads stdin")
	f.IntVar(&opts.sampleRate, "sample-rate", capture.DefaultSampleRate, "sample rate of raw PCM input")
	f.IntVar(&opts.channels, "channels", capture.DefaultNumChannels, "channel count of raw PCM input")
	f.BoolVar(&opts.realtime, "realtime", false, "pace file input at playback speed")
	f.DurationVar(&opts.chunkInterval, "chunk-interval", 0, "rolling chunk interval (default: the server's)")
	f.StringVar(&opts.logMode, "log-mode", "capture", "logger mode (capture, development, prod)")
	f.StringArrayVar(&opts.speakers, "speaker", nil, "manual speaker name, tag=name (repeatable)")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func run(parent context.Context, opts *options) error {
	corrections, err := capture.ParseCorrections(opts.speakers)
	if err != nil {
		return err
	}
	log, err := logger.New(opts.logMode)
	if err != nil {
		return err
	}
	defer log.Sync()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := shutdown.NotifyContext(parent)
	defer stop()

	backend := capture.NewBackend(opts.server, opts.sessionID, 30*time.Second)
	creds, err := backend.StreamCredentials(ctx)
	if err != nil {
		return fmt.Errorf("fetch stream credentials: %w", err)
	}
	participants := creds.Session.Participants
	log.Info("session loaded", "session_id", creds.Session.ID, "status", creds.Session.Status, "participants", len(participants))

	src, err := capture.OpenSource(opts.input, capture.Format{SampleRate: opts.sampleRate, NumChannels: opts.channels}, capture.DefaultFrameMs, opts.realtime)
	if err != nil {
		return err
	}
	format := src.Format()

	names := make([]string, 0, len(participants))
	for _, p := range participants {
		names = append(names, p.Name)
	}
	stream := audiostream.New(audiostream.Config{
		URL:          creds.WebSocketURL,
		SpeakerCount: len(participants),
		ContextTerms: names,
		AudioFormat:  format.AudioFormat(),
		SampleRate:   format.SampleRate,
		NumChannels:  format.NumChannels,
	}, backend.Credentials(), nil, log)

	resolver := speakerid.NewResolver(speakerid.DefaultConfig(), backend.Inferrer(), capture.Hints(participants), log)
	for tag, name := range corrections {
		resolver.Correct(tag, name)
	}

	interval := opts.chunkInterval
	if interval <= 0 && creds.ChunkIntervalSeconds > 0 {
		interval = time.Duration(creds.ChunkIntervalSeconds) * time.Second
	}
	// Corrections posted to the server while recording are picked up live.
	pipeline := capture.NewPipeline(capture.Config{ChunkInterval: interval}, backend, resolver, log).
		WithCorrections(backend)

	log.Info("capture started", "input", opts.input, "sample_rate", format.SampleRate, "channels", format.NumChannels, "chunk_interval", interval.String())
	summary, err := pipeline.Run(ctx, stream, src)
	if summary != nil {
		fmt.Println(renderSummary(creds.Session.Name, summary, participants))
	}
	return err
}
