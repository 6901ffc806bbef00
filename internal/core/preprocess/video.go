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

package preprocess

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

var ErrNoVideoStream = errors.New("no video stream found")

type probeStream struct {
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Duration  string `json:"duration"`
	BitRate   string `json:"bit_rate"`
	FrameRate string `json:"avg_frame_rate"`
}

// ProbeOutput is the subset of `ffprobe -print_format json -show_streams
// -show_format` that feature extraction reads.
type ProbeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
}

// ExtractVideo probes a video with ffprobe. A transcript is attached when a
// sidecar text file with the same stem sits next to the video.
func (p *Preprocessor) ExtractVideo(ctx context.Context, path string) (map[string]any, error) {
	cmd := exec.CommandContext(ctx, p.config.FFprobeCommand,
		"-v", "error", "-print_format", "json", "-show_streams", "-show_format", path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("error running ffprobe: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var probe ProbeOutput
	if err := json.Unmarshal(stdout.Bytes(), &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	features, err := VideoFeatures(&probe)
	if err != nil {
		return nil, err
	}
	features["transcript"] = readTranscript(path)
	return features, nil
}

// VideoFeatures derives resolution, aspect ratio, length and bitrates.
func VideoFeatures(probe *ProbeOutput) (map[string]any, error) {
	var video, audio *probeStream
	for i := range probe.Streams {
		s := &probe.Streams[i]
		switch {
		case s.CodecType == "video" && video == nil:
			video = s
		case s.CodecType == "audio" && audio == nil:
			audio = s
		}
	}
	if video == nil || video.Width <= 0 || video.Height <= 0 {
		return nil, ErrNoVideoStream
	}

	length := parseFloat(probe.Format.Duration)
	if length == 0 {
		length = parseFloat(video.Duration)
	}

	g := gcd(video.Width, video.Height)
	features := map[string]any{
		"resolution":         fmt.Sprintf("%dx%d", video.Width, video.Height),
		"aspect_ratio":       fmt.Sprintf("%d:%d", video.Width/g, video.Height/g),
		"length":             math.Round(length*100) / 100,
		"video_bitrate_kbps": kbps(video.BitRate),
		"audio_bitrate_kbps": 0.0,
	}
	if fps := frameRate(video.FrameRate); fps > 0 {
		features["fps"] = math.Round(fps*100) / 100
	}
	if audio != nil {
		features["audio_bitrate_kbps"] = kbps(audio.BitRate)
	}
	return features, nil
}

func readTranscript(videoPath string) string {
	stem := strings.TrimSuffix(videoPath, filepath.Ext(videoPath))
	data, err := os.ReadFile(stem + ".txt")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func kbps(bitRate string) float64 {
	return math.Round(parseFloat(bitRate)/1000*10) / 10
}

// frameRate parses ffprobe's "30000/1001" notation.
func frameRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseFloat(s)
	}
	d := parseFloat(den)
	if d == 0 {
		return 0
	}
	return parseFloat(num) / d
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
