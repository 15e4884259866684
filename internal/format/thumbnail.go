package format

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/franz/drone-catalog/internal/classify"
	"github.com/franz/drone-catalog/internal/organize"
	"github.com/franz/drone-catalog/internal/semantic"
	"github.com/franz/drone-catalog/internal/util"
)

const (
	thumbnailWidth   = 640
	thumbnailHeight  = 360 // placeholder only; real frames keep their aspect
	thumbnailSeekSec = 3.0
	placeholderJPEG  = 85
)

var missionColors = map[classify.Mission]color.RGBA{
	classify.MissionBox:     {R: 0x2f, G: 0x6f, B: 0xb3, A: 0xff},
	classify.MissionSafety:  {R: 0xd9, G: 0x8c, B: 0x1f, A: 0xff},
	classify.MissionUnknown: {R: 0x6b, G: 0x6b, B: 0x6b, A: 0xff},
}

// Thumbnail grabs one frame per video with ffmpeg. When ffmpeg is missing
// or fails, a placeholder JPEG in the mission's color is written instead.
type Thumbnail struct {
	FFmpeg string

	// replaced in tests
	lookPath func(file string) (string, error)
	run      func(ctx context.Context, name string, args ...string) error
}

// NewThumbnail creates the thumbnail formatter
func NewThumbnail() *Thumbnail {
	return &Thumbnail{FFmpeg: "ffmpeg", lookPath: exec.LookPath, run: runCommand}
}

func (t *Thumbnail) Name() string { return "thumbnail" }

func (t *Thumbnail) Format(ctx context.Context, batch *Batch, org *organize.Organizer) ([]string, error) {
	haveFFmpeg := t.available()
	if !haveFFmpeg {
		util.WarnLog("ffmpeg not found, writing placeholder thumbnails")
	}

	return perItem(ctx, batch, "thumbnail", func(it semantic.Item) (string, error) {
		p, err := org.ResolvePath(it.Assignment.Mission, organize.KindThumbnail, it.Record.Path)
		if err != nil {
			return "", err
		}
		dest := p.String()

		if haveFFmpeg {
			err := t.extractFrame(ctx, it, dest)
			if err == nil {
				var size int64
				if fi, statErr := os.Stat(dest); statErr == nil {
					size = fi.Size()
				}
				batch.Logger.LogOutput("thumbnail", it.Record.Path, dest, size)
				return dest, nil
			}
			if errors.Is(err, context.Canceled) {
				return "", err
			}
			util.DebugLog("Frame grab failed for %s, using placeholder: %v", it.Record.Path, err)
		}

		data, err := Placeholder(it.Assignment.Mission)
		if err != nil {
			return "", err
		}
		if err := writeFile(ctx, batch, "thumbnail", it.Record.Path, dest, data); err != nil {
			return "", err
		}
		return dest, nil
	})
}

func (t *Thumbnail) available() bool {
	if t.FFmpeg == "" {
		return false
	}
	_, err := t.lookPath(t.FFmpeg)
	return err == nil
}

// extractFrame seeks 3 s in, or to the middle of clips shorter than that
func (t *Thumbnail) extractFrame(ctx context.Context, it semantic.Item, dest string) error {
	seek := thumbnailSeekSec
	if it.Record.HasDuration() && *it.Record.DurationSec <= seek {
		seek = *it.Record.DurationSec / 2
	}

	err := t.run(ctx, t.FFmpeg,
		"-y",
		"-v", "error",
		"-ss", strconv.FormatFloat(seek, 'f', -1, 64),
		"-i", it.Record.Path,
		"-vframes", "1",
		"-vf", fmt.Sprintf("scale=%d:-1", thumbnailWidth),
		"-q:v", "2",
		dest,
	)
	if err != nil {
		return err
	}
	if fi, err := os.Stat(dest); err != nil || fi.Size() == 0 {
		return fmt.Errorf("ffmpeg produced no frame")
	}
	return nil
}

// Placeholder renders a 640x360 JPEG: mission color with a dark play mark
func Placeholder(mission classify.Mission) ([]byte, error) {
	bg, ok := missionColors[mission]
	if !ok {
		bg = missionColors[classify.MissionUnknown]
	}

	img := image.NewRGBA(image.Rect(0, 0, thumbnailWidth, thumbnailHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: bg}, image.Point{}, draw.Src)

	mark := color.RGBA{R: bg.R / 3, G: bg.G / 3, B: bg.B / 3, A: 0xff}
	cx, cy := thumbnailWidth/2, thumbnailHeight/2
	const half = 60
	for x := -half; x <= half; x++ {
		// triangle pointing right: height shrinks as x grows
		span := (half - x) / 2
		for y := -span; y <= span; y++ {
			img.SetRGBA(cx+x, cy+y, mark)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: placeholderJPEG}); err != nil {
		return nil, fmt.Errorf("failed to encode placeholder: %w", err)
	}
	return buf.Bytes(), nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s failed: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
