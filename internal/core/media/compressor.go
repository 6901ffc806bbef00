// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package media shrinks media files to within the model's upload limits.
//
// Files that already fit are sent as they are. Larger images are scaled
// down with ffmpeg so the longest side fits, larger videos are re-encoded to
// a smaller width. Transient outputs are written to a work directory and
// reported through Attachment.TempPath so the caller can delete them once
// the batch has been submitted.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"os/exec"
	"strconv"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	"github.com/jaycherian/gcp-go-ad-analysis/internal/cloud"
	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/model"
	_ "golang.org/x/image/webp"
)

const TempFilePrefix = "compressed-"

var ErrTooLarge = errors.New("media exceeds the upload limit")

// videoArgs resizes to width, keeping the aspect ratio and an even height.
func videoArgs(in string, width int, out string) []string {
	return []string{
		"-analyzeduration", "0", "-probesize", "5000000", "-y", "-hide_banner",
		"-i", in,
		"-filter:v", fmt.Sprintf("scale=w=%d:h=trunc(ow/a/2)*2", width),
		"-f", "mp4", out,
	}
}

// imageArgs fits the image into a dim x dim box.
func imageArgs(in string, dim int, out string) []string {
	return []string{
		"-y", "-hide_banner",
		"-i", in,
		"-vf", fmt.Sprintf("scale=w=%d:h=%d:force_original_aspect_ratio=decrease", dim, dim),
		"-q:v", "3", out,
	}
}

// Compressor prepares attachments for the model.
type Compressor struct {
	config  cloud.Media
	workDir string
}

// NewCompressor writes transient copies to workDir, created on demand. An
// empty workDir uses the system temporary directory.
func NewCompressor(config cloud.Media, workDir string) *Compressor {
	return &Compressor{config: config, workDir: workDir}
}

func (c *Compressor) Compress(ctx context.Context, rec *model.PreprocessingRecord) (*model.Attachment, error) {
	if rec.LocalPath == "" {
		return nil, fmt.Errorf("no local file for %s", rec.Filename)
	}
	info, err := os.Stat(rec.LocalPath)
	if err != nil {
		return nil, err
	}
	mimeType, err := DetectMIME(rec.LocalPath)
	if err != nil {
		return nil, err
	}

	switch rec.Kind {
	case model.MediaKindImage:
		return c.compressImage(ctx, rec, info.Size(), mimeType)
	case model.MediaKindVideo:
		return c.compressVideo(ctx, rec, info.Size(), mimeType)
	default:
		return nil, fmt.Errorf("unsupported media kind %q for %s", rec.Kind, rec.Filename)
	}
}

func (c *Compressor) compressImage(ctx context.Context, rec *model.PreprocessingRecord, size int64, mimeType string) (*model.Attachment, error) {
	fits := c.config.MaxImageBytes <= 0 || size <= c.config.MaxImageBytes
	if c.config.MaxImageDimension > 0 {
		w, h, err := imageSize(rec.LocalPath)
		if err != nil {
			return nil, err
		}
		fits = fits && max(w, h) <= c.config.MaxImageDimension
	}
	if fits {
		return passThrough(rec, mimeType)
	}

	dim := c.config.MaxImageDimension
	if dim <= 0 {
		dim = 1536
	}
	out, err := c.tempFile(".jpg")
	if err != nil {
		return nil, err
	}
	if err := c.ffmpeg(ctx, imageArgs(rec.LocalPath, dim, out)); err != nil {
		_ = os.Remove(out)
		return nil, err
	}
	return c.readOutput(rec, out, "image/jpeg", c.config.MaxImageBytes)
}

func (c *Compressor) compressVideo(ctx context.Context, rec *model.PreprocessingRecord, size int64, mimeType string) (*model.Attachment, error) {
	if c.config.MaxVideoBytes <= 0 || size <= c.config.MaxVideoBytes {
		return passThrough(rec, mimeType)
	}
	width := c.config.VideoTargetWidth
	if width <= 0 {
		width = 640
	}
	out, err := c.tempFile(".mp4")
	if err != nil {
		return nil, err
	}
	if err := c.ffmpeg(ctx, videoArgs(rec.LocalPath, width, out)); err != nil {
		_ = os.Remove(out)
		return nil, err
	}
	return c.readOutput(rec, out, "video/mp4", c.config.MaxVideoBytes)
}

func (c *Compressor) readOutput(rec *model.PreprocessingRecord, path, mimeType string, limit int64) (*model.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	if limit > 0 && int64(len(data)) > limit {
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w: %s is %d bytes after compression, limit %d", ErrTooLarge, rec.Filename, len(data), limit)
	}
	return &model.Attachment{Filename: rec.Filename, MIMEType: mimeType, Data: data, TempPath: path}, nil
}

func (c *Compressor) tempFile(ext string) (string, error) {
	if c.workDir != "" {
		if err := os.MkdirAll(c.workDir, 0o755); err != nil {
			return "", err
		}
	}
	f, err := os.CreateTemp(c.workDir, TempFilePrefix+"*"+ext)
	if err != nil {
		return "", err
	}
	name := f.Name()
	_ = f.Close()
	return name, nil
}

func (c *Compressor) ffmpeg(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, c.config.FFmpegCommand, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("error running ffmpeg: %w: %s", err, lastLine(stderr.String()))
	}
	return nil
}

func passThrough(rec *model.PreprocessingRecord, mimeType string) (*model.Attachment, error) {
	data, err := os.ReadFile(rec.LocalPath)
	if err != nil {
		return nil, err
	}
	return &model.Attachment{Filename: rec.Filename, MIMEType: mimeType, Data: data}, nil
}

func imageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strconv.Quote(lines[len(lines)-1])
}
