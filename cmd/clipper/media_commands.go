package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gwlsn/clipper/internal/browse"
	"github.com/gwlsn/clipper/internal/ffmpeg"
	"github.com/spf13/cobra"
)

func newProbeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <file>",
		Short: "Show media information for a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.services()
			if err != nil {
				return err
			}
			info, err := svc.prober.Inspect(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Field", "Value"},
				mediaInfoRows(info),
				[]columnAlignment{alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func mediaInfoRows(info *ffmpeg.MediaInfo) [][]string {
	rows := [][]string{
		{"Path", info.Path},
		{"Container", info.Format},
		{"Duration", formatSeconds(info.Duration)},
		{"Size", humanize.Bytes(uint64(info.Size))},
	}
	if info.Bitrate > 0 {
		rows = append(rows, []string{"Bitrate", fmt.Sprintf("%s/s", humanize.SI(float64(info.Bitrate), "b"))})
	}
	if info.HasVideo {
		video := info.VideoCodec
		if info.Width > 0 && info.Height > 0 {
			video = fmt.Sprintf("%s %dx%d", video, info.Width, info.Height)
		}
		if info.FrameRate > 0 {
			video = fmt.Sprintf("%s @ %s fps", video, strconv.FormatFloat(info.FrameRate, 'f', -1, 64))
		}
		rows = append(rows, []string{"Video", video})
	}
	if info.HasAudio {
		rows = append(rows, []string{"Audio", info.AudioCodec})
	}
	return rows
}

func newBrowseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "browse [dir]",
		Short: "List media files under the media root",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.services()
			if err != nil {
				return err
			}
			var dir string
			if len(args) == 1 {
				dir = args[0]
			}

			browser := browse.NewBrowser(svc.prober, svc.cfg.GetMediaRoot(), svc.logger)
			listing, err := browser.List(cmd.Context(), dir)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(listing.Entries))
			for _, e := range listing.Entries {
				if e.IsDir {
					rows = append(rows, []string{e.Name + "/", fmt.Sprintf("%d media", e.MediaCount), "", ""})
					continue
				}
				duration, codec := "unknown", "-"
				if e.MediaInfo != nil {
					duration = formatSeconds(e.MediaInfo.Duration)
					codec = e.MediaInfo.VideoCodec
					if codec == "" {
						codec = e.MediaInfo.AudioCodec
					}
				}
				rows = append(rows, []string{e.Name, humanize.Bytes(uint64(e.Size)), duration, codec})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, listing.Path)
			fmt.Fprintln(out, renderTable(
				[]string{"Name", "Size", "Duration", "Codec"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
}

func newArgsCommand(ctx *commandContext) *cobra.Command {
	var flags optionFlags
	var output string
	var duration float64

	cmd := &cobra.Command{
		Use:   "args <file>",
		Short: "Print the ffprobe and ffmpeg commands a conversion would run",
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

			input := args[0]
			if !cmd.Flags().Changed("duration") {
				if d, err := svc.prober.Duration(cmd.Context(), input); err == nil {
					duration = d
				} else {
					svc.logger.Warn("duration probe failed", "path", input, "error", err)
					duration = 0
				}
			}
			if err := opts.Validate(duration); err != nil {
				return err
			}

			outputPath := output
			if outputPath == "" {
				outputPath = ffmpeg.DefaultOutputPath(input, opts.Format)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", svc.cfg.FFprobePath, shellJoin(ffmpeg.BuildProbeArgs(input)))
			fmt.Fprintf(out, "%s %s\n", svc.cfg.FFmpegPath,
				shellJoin(ffmpeg.BuildTranscodeArgs(ffmpeg.Source{Path: input, Duration: duration}, opts, outputPath)))
			fmt.Fprintln(out, renderTable(
				[]string{"Estimate", "Value"},
				estimateRows(ffmpeg.EstimateOutput(opts, duration)),
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (default <name>_converted.<ext>)")
	cmd.Flags().Float64Var(&duration, "duration", 0, "Source duration in seconds; probed when omitted")
	return cmd
}

func estimateRows(est *ffmpeg.Estimate) [][]string {
	rows := [][]string{
		{"Clip duration", formatSeconds(est.ClipDuration)},
		{"Output duration", formatSeconds(est.OutputDuration)},
	}
	if est.TotalKbps > 0 {
		rows = append(rows, []string{"Total bitrate", fmt.Sprintf("%d kb/s", est.TotalKbps)})
	}
	if est.VideoBitrate > 0 {
		rows = append(rows, []string{"Video bitrate", fmt.Sprintf("%d b/s", est.VideoBitrate)})
	}
	if est.EstimatedSize > 0 {
		rows = append(rows, []string{"Estimated size", humanize.Bytes(uint64(est.EstimatedSize))})
	}
	if est.UsesFallback {
		rows = append(rows, []string{"Rate control", "fixed quality fallback"})
	}
	if est.Warning != "" {
		rows = append(rows, []string{"Warning", est.Warning})
	}
	return rows
}

func newThumbnailCommand(ctx *commandContext) *cobra.Command {
	var dataURI bool

	cmd := &cobra.Command{
		Use:   "thumbnail <file>",
		Short: "Extract a preview frame",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.services()
			if err != nil {
				return err
			}
			path, err := svc.thumbnailer.Generate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !dataURI {
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			}
			uri, err := ffmpeg.ThumbnailDataURI(path)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), uri)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dataURI, "data-uri", false, "Print the frame as a data URI instead of its path")
	return cmd
}

func newPresetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "presets",
		Short:       "List size presets",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := ffmpeg.ListPresets()
			rows := make([][]string, 0, len(presets))
			for _, p := range presets {
				rows = append(rows, []string{
					p.ID,
					p.Name,
					strconv.FormatFloat(p.TargetSizeMB, 'f', -1, 64) + " MB",
					p.Description,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "Target", "Description"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
}

func newFormatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List output formats and the encoder each one uses",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.services()
			if err != nil {
				return err
			}
			supported := svc.formats.Detect(cmd.Context())
			rows := make([][]string, 0, len(supported))
			for _, fs := range supported {
				encoder := fs.Encoder
				if encoder == "" {
					encoder = "-"
				}
				rows = append(rows, []string{string(fs.Format), formatKind(fs.Format), encoder, yesNo(fs.Available)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Format", "Kind", "Encoder", "Available"},
				rows,
				nil,
			))
			return nil
		},
	}
}

func formatKind(f ffmpeg.Format) string {
	switch {
	case f == ffmpeg.FormatGIF:
		return "animation"
	case f.IsAudioOnly():
		return "audio"
	default:
		return "video"
	}
}

// formatSeconds renders seconds as H:MM:SS.ss, or "unknown" for 0
func formatSeconds(seconds float64) string {
	if seconds <= 0 {
		return "unknown"
	}
	h := int(seconds) / 3600
	m := int(seconds) % 3600 / 60
	s := seconds - float64(h*3600+m*60)
	return fmt.Sprintf("%d:%02d:%05.2f", h, m, s)
}

// shellJoin joins args for display, quoting any that the shell would split
func shellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\"';[]$*?&|<>()") {
			quoted[i] = strconv.Quote(a)
		} else {
			quoted[i] = a
		}
	}
	return strings.Join(quoted, " ")
}
