package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/studymill/studymill-backend/internal/pkg/ctxutil"
	"github.com/studymill/studymill-backend/internal/platform/logger"
)

// MediaInfo summarizes the container and stream layout of an uploaded file.
type MediaInfo struct {
	DurationSec float64
	HasAudio    bool
	HasVideo    bool
	Container   string
	AudioCodec  string
}

type Prober interface {
	Probe(ctx context.Context, path string) (*MediaInfo, error)
}

type ffprobeProber struct {
	log         *logger.Logger
	ffprobePath string
	timeout     time.Duration
}

func NewProber(log *logger.Logger) Prober {
	return &ffprobeProber{
		log:         log.With("service", "MediaProber"),
		ffprobePath: "ffprobe",
		timeout:     30 * time.Second,
	}
}

type ffprobeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
	} `json:"streams"`
}

func (p *ffprobeProber) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probed ffprobeOutput
	if err := json.Unmarshal(out, &probed); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &MediaInfo{Container: probed.Format.FormatName}
	if d := strings.TrimSpace(probed.Format.Duration); d != "" {
		if sec, perr := strconv.ParseFloat(d, 64); perr == nil && sec > 0 {
			info.DurationSec = sec
		}
	}
	for _, st := range probed.Streams {
		switch st.CodecType {
		case "audio":
			info.HasAudio = true
			if info.AudioCodec == "" {
				info.AudioCodec = st.CodecName
			}
		case "video":
			info.HasVideo = true
		}
	}
	return info, nil
}
