package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/franz/drone-catalog/internal/classify"
	"github.com/franz/drone-catalog/internal/format"
	"github.com/franz/drone-catalog/internal/meta"
	"github.com/franz/drone-catalog/internal/organize"
	"github.com/franz/drone-catalog/internal/semantic"
	"github.com/franz/drone-catalog/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var extractCmd = &cobra.Command{
	Use:   "extract <video>",
	Short: "Extract and classify a single video",
	Long: `Extract the metadata of one video, classify it and print the result.

The video path as given is used for classification, so pass the path
including its bay or mission folder (e.g. flights/8D/DJI_0593.MP4).

With --output the video's metadata document and thumbnail are written to
{output}/{batch-name}/{mission}/metadata. Nothing is recorded in the
catalog.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("output", "o", "", "write the document and thumbnail under this directory")
	extractCmd.Flags().String("batch-name", "single", "batch folder name used with --output")
	extractCmd.Flags().String("rules", "", "classification rules YAML")
	extractCmd.Flags().Bool("no-thumbnails", false, "skip thumbnail generation")
	extractCmd.Flags().Bool("json", false, "print the record as JSON")
	extractCmd.Flags().StringSlice("skip-sources", nil, "metadata sources to skip (ffprobe, tags, xmp, exif, srt)")
}

func runExtract(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd); err != nil {
		return err
	}
	ctx := context.Background()
	path := args[0]

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory (use dcat batch)", util.ErrUnsupported, path)
	}

	classifyCfg, err := classifyConfig()
	if err != nil {
		return err
	}
	semanticCfg, err := semanticConfig()
	if err != nil {
		return err
	}
	skip, err := skipSources()
	if err != nil {
		return err
	}
	classifier, err := classify.New(classifyCfg)
	if err != nil {
		return err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	rec, err := meta.New(&meta.Config{SkipSources: skip}).Extract(ctx, abs)
	if err != nil {
		return err
	}
	if rec.FileKey == "" {
		rec.FileKey, _ = util.GenerateFileKey(abs)
	}
	a := classifier.Classify(rec, filepath.ToSlash(filepath.Clean(path)))
	item := semantic.Item{Record: rec, Assignment: a}

	exporter, err := semantic.New(semanticCfg, nil)
	if err != nil {
		return err
	}
	tables := exporter.Export([]semantic.Item{item})

	if GetConfigBool("json") {
		out := struct {
			Record     *meta.VideoRecord   `json:"record"`
			Assignment classify.Assignment `json:"assignment"`
			Fact       semantic.Row        `json:"fact,omitempty"`
		}{Record: rec, Assignment: a}
		if tables.Facts.Len() > 0 {
			out.Fact = tables.Facts.Rows[0]
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	} else {
		printRecord(rec, a, tables)
	}

	output := viper.GetString("output")
	if output == "" {
		return nil
	}

	org, err := organize.New(organize.Config{Root: output, BatchName: GetConfigString("batch-name", "single")})
	if err != nil {
		return err
	}
	thumbs := !GetConfigBool("no-thumbnails")
	md := format.NewMarkdown()
	md.LinkThumbnails = thumbs
	formatters := []format.Formatter{md}
	if thumbs {
		formatters = append(formatters, format.NewThumbnail())
	}
	written, err := format.Run(ctx, formatters, &format.Batch{
		Name:      org.Batch(),
		StartedAt: time.Now(),
		Items:     []semantic.Item{item},
		Tables:    tables,
		Retry:     util.FSRetryConfig(),
	}, org)
	for _, p := range written {
		util.SuccessLog("Wrote %s", p)
	}
	return err
}

func printRecord(rec *meta.VideoRecord, a classify.Assignment, tables *semantic.Tables) {
	fmt.Printf("File:        %s\n", rec.Path)
	fmt.Printf("Size:        %s\n", util.FormatBytes(rec.SizeBytes))
	if rec.HasDuration() {
		fmt.Printf("Duration:    %s\n", util.FormatSeconds(*rec.DurationSec))
	}
	if rec.HasResolution() {
		fmt.Printf("Resolution:  %dx%d\n", rec.Width, rec.Height)
	}
	if rec.Codec != "" {
		fmt.Printf("Codec:       %s\n", rec.Codec)
	}
	if rec.Make != "" || rec.Model != "" {
		fmt.Printf("Camera:      %s %s\n", rec.Make, rec.Model)
	}
	if rec.GPS != nil {
		fmt.Printf("GPS:         %.6f, %.6f\n", rec.GPS.Latitude, rec.GPS.Longitude)
	}
	if alt, ok := rec.Altitude(); ok {
		fmt.Printf("Altitude:    %.1f m\n", alt)
	}
	for _, src := range meta.AllSources {
		ok, tried := rec.Extraction[src]
		switch {
		case !tried:
		case ok:
			fmt.Printf("  %-8s ok\n", src)
		default:
			fmt.Printf("  %-8s failed: %s\n", src, rec.Errors[src])
		}
	}

	fmt.Println()
	fmt.Printf("Mission:     %s\n", a.Mission)
	fmt.Printf("Confidence:  %.2f\n", a.Confidence)
	fmt.Printf("Method:      %s\n", a.Method)
	if a.HasBay() {
		fmt.Printf("Bay:         %s\n", a.Bay)
	}

	fmt.Println()
	if tables.Facts.Len() == 0 {
		for _, s := range tables.Skipped {
			fmt.Printf("Semantic model: left out (%v)\n", s.Err)
		}
		return
	}
	row := tables.Facts.Rows[0]
	for _, m := range []struct{ label, value, prefix string }{
		{"Altitude m", "altitude_m", "altitude"},
		{"Speed m/s", "speed_ms", "speed"},
		{"Distance m", "distance_m", "distance"},
		{"Gimbal deg", "gimbal_angle_deg", "angle"},
	} {
		fmt.Printf("%-12s %s (%s, %s)\n", m.label+":", semantic.FormatValue(row[m.value]),
			semantic.FormatValue(row[m.prefix+"_provenance"]), semantic.FormatValue(row[m.prefix+"_band"]))
	}
}
