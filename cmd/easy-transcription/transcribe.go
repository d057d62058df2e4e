package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/easytranscription/easy-transcription/internal/transcript"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <audio-file>",
	Short: "Transcribe one file and print the speaker blocks",
	Long: `Transcribe uploads an audio file, waits for the diarized transcript and
writes it as "Speaker: text" blocks. Speakers can be named up front with
--speaker 0="Dr.|Jane|Doe".`,
	Args: cobra.ExactArgs(1),
	RunE: runTranscribe,
}

var (
	speakerFlags []string
	exportFormat string
	outputPath   string
)

func init() {
	transcribeCmd.Flags().StringArrayVarP(&speakerFlags, "speaker", "s", nil, `name a speaker as ID=Title|First|Last (repeatable)`)
	transcribeCmd.Flags().StringVarP(&exportFormat, "format", "f", "text", "output format: text, markdown")
	transcribeCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output path (default: stdout)")

	rootCmd.AddCommand(transcribeCmd)
}

// speakerName is one parsed --speaker flag
type speakerName struct {
	index   int
	profile transcript.SpeakerProfile
}

// parseSpeakerFlag parses "ID=Title|First|Last"; trailing parts may be omitted
// and a value without "|" is taken as the first name.
func parseSpeakerFlag(value string) (speakerName, error) {
	id, names, ok := strings.Cut(value, "=")
	if !ok {
		return speakerName{}, fmt.Errorf("speaker %q: expected ID=Title|First|Last", value)
	}

	index, err := strconv.Atoi(strings.TrimSpace(id))
	if err != nil || index < 0 {
		return speakerName{}, fmt.Errorf("speaker %q: invalid id", value)
	}

	parts := strings.Split(names, "|")
	if len(parts) > 3 {
		return speakerName{}, fmt.Errorf("speaker %q: too many name parts", value)
	}

	var profile transcript.SpeakerProfile
	if len(parts) == 1 {
		profile.FirstName = strings.TrimSpace(parts[0])
	} else {
		fields := []*string{&profile.Title, &profile.FirstName, &profile.LastName}
		for i, part := range parts {
			*fields[i] = strings.TrimSpace(part)
		}
	}

	return speakerName{index: index, profile: profile}, nil
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	inputPath := args[0]

	if exportFormat != "text" && exportFormat != "markdown" {
		return fmt.Errorf("unsupported format %q: use text or markdown", exportFormat)
	}

	names := make([]speakerName, 0, len(speakerFlags))
	for _, flag := range speakerFlags {
		name, err := parseSpeakerFlag(flag)
		if err != nil {
			return err
		}
		names = append(names, name)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// stdout may carry the transcript
	if cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}
	logger := initLogger(cfg.Logging)

	in, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	workDir, err := os.MkdirTemp("", "easy-transcription-*")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	svc, err := newServices(cfg, workDir, logger, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer svc.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	id := svc.sessionMgr.CreateSession().ID
	if _, err := svc.sessionMgr.Upload(ctx, id, filepath.Base(inputPath), in, nil); err != nil {
		return err
	}

	startTime := time.Now()
	if _, err := svc.sessionMgr.StartTranscription(id); err != nil {
		return err
	}
	snap, err := svc.sessionMgr.WaitTranscription(ctx, id)
	if err != nil {
		return err
	}
	if !snap.HasTranscript() {
		return fmt.Errorf("transcription of %s failed", inputPath)
	}
	logger.Info("Transcription finished",
		slog.String("file", inputPath),
		slog.Int("speakers", len(snap.Speakers)),
		slog.Duration("elapsed", time.Since(startTime)),
	)

	for _, name := range names {
		if _, err := svc.sessionMgr.UpdateSpeaker(id, name.index, name.profile); err != nil {
			return fmt.Errorf("--speaker %d: %w", name.index, err)
		}
	}

	_, blocks, err := svc.sessionMgr.Transcript(id)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	return writeTranscript(out, exportFormat, blocks, transcript.Metadata{
		Source:    filepath.Base(inputPath),
		Model:     svc.client.Model(),
		Generated: time.Now(),
	})
}

func writeTranscript(w io.Writer, format string, blocks []transcript.Block, meta transcript.Metadata) error {
	if format == "markdown" {
		if _, err := io.WriteString(w, transcript.RenderMarkdown(meta, blocks)); err != nil {
			return fmt.Errorf("%w: %w", transcript.ErrCopyFailed, err)
		}
		return nil
	}
	return transcript.WriteExport(w, blocks)
}
