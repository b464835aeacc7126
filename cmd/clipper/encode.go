package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gwlsn/clipper/internal/ffmpeg"
	"github.com/gwlsn/clipper/internal/jobs"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func newEncodeCommand(ctx *commandContext) *cobra.Command {
	var flags optionFlags
	var output string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "encode <file>",
		Short: "Convert a file and show progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.services()
			if err != nil {
				return err
			}
			opts, err := flags.apply(cmd, svc.cfg.Defaults)
			if err != nil {
				return err
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			// Unusable formats are only known after detection
			svc.formats.Detect(signalCtx)

			runner := svc.newRunner()
			events := runner.Subscribe()
			progress := newEncodeProgress(cmd.OutOrStdout(), cmd.ErrOrStderr(), verbose)
			rendered := make(chan struct{})
			go func() {
				defer close(rendered)
				for ev := range events {
					progress.handle(ev)
				}
			}()

			job, runErr := runner.Run(signalCtx, jobs.StartRequest{
				InputPath:  args[0],
				OutputPath: output,
				Options:    opts,
			})
			runner.Unsubscribe(events)
			<-rendered
			progress.finish()

			return reportJob(cmd.OutOrStdout(), cmd.ErrOrStderr(), job, runErr)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (default <name>_converted.<ext>)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Echo ffmpeg output while encoding")
	return cmd
}

// reportJob prints the outcome of a finished job and returns the error the
// command should exit with
func reportJob(out, errOut io.Writer, job *jobs.Job, runErr error) error {
	if job == nil {
		return runErr
	}
	switch {
	case errors.Is(runErr, context.Canceled):
		fmt.Fprintln(errOut, "Conversion cancelled")
		return runErr
	case runErr != nil:
		for _, line := range job.Transcript {
			if line.Level == jobs.LevelError {
				fmt.Fprintln(errOut, line.Text)
			}
		}
		return fmt.Errorf("conversion failed: %w", runErr)
	}

	fmt.Fprintf(out, "Wrote %s (%s) in %s\n", job.OutputPath,
		humanize.Bytes(uint64(job.OutputSize)), job.Elapsed().Round(10*time.Millisecond))
	if job.InputSize > 0 && job.OutputSize > 0 {
		fmt.Fprintf(out, "Size: %s -> %s (%.0f%%)\n",
			humanize.Bytes(uint64(job.InputSize)), humanize.Bytes(uint64(job.OutputSize)),
			float64(job.OutputSize)/float64(job.InputSize)*100)
	}
	return nil
}

// encodeProgress renders job events: a progress bar on a terminal, plain
// milestone lines otherwise
type encodeProgress struct {
	out     io.Writer
	errOut  io.Writer
	verbose bool
	bar     *progressbar.ProgressBar
}

func newEncodeProgress(out, errOut io.Writer, verbose bool) *encodeProgress {
	p := &encodeProgress{out: out, errOut: errOut, verbose: verbose}
	if isTerminal(out) && !verbose {
		p.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetDescription("encoding"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
			progressbar.OptionClearOnFinish(),
		)
	}
	return p
}

func (p *encodeProgress) handle(ev jobs.JobEvent) {
	switch ev.Type {
	case jobs.EventStarted:
		if ev.Job != nil {
			fmt.Fprintf(p.out, "Converting %s -> %s\n", ev.Job.InputPath, ev.Job.OutputPath)
		}
	case jobs.EventLine:
		if p.verbose && ev.Line != nil && ev.Line.Stream == ffmpeg.StreamStderr {
			fmt.Fprintln(p.errOut, ev.Line.Text)
		}
	case jobs.EventProgress:
		if ev.ProgressUpdate == nil {
			return
		}
		if p.bar != nil {
			_ = p.bar.Set(int(ev.ProgressUpdate.Progress))
		}
	case jobs.EventMilestone:
		if p.bar == nil && ev.ProgressUpdate != nil {
			fmt.Fprintf(p.out, "Progress: %d%%\n", ev.ProgressUpdate.Milestone)
		}
	}
}

func (p *encodeProgress) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
