package decode

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/go-resty/resty/v2"

	"github.com/himanishpuri/sonicres/pkg/models"
)

// Remote posts the recording to a transcoding sidecar that answers with a WAV
// body. The target profile travels as query parameters.
type Remote struct {
	client *resty.Client
	url    string
}

func NewRemote(url string) *Remote {
	return &Remote{
		client: resty.New().SetHeader("User-Agent", "sonicres-decoder"),
		url:    url,
	}
}

func (r *Remote) Decode(ctx context.Context, src, dst string, profile models.PCMProfile) (models.PCM, error) {
	in, err := os.Open(src)
	if err != nil {
		return models.PCM{}, fmt.Errorf("decode: open input: %w", err)
	}
	defer in.Close()

	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetQueryParams(map[string]string{
			"channels":    strconv.Itoa(profile.Channels),
			"sample_rate": strconv.Itoa(profile.SampleRate),
			"bit_depth":   strconv.Itoa(profile.BitDepth),
		}).
		SetBody(in).
		SetDoNotParseResponse(true).
		Post(r.url)
	if err != nil {
		return models.PCM{}, runErr(ctx, "remote transcode", nil, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(body, 512))
		return models.PCM{}, fmt.Errorf("decode: remote transcode returned %d: %s", resp.StatusCode(), msg)
	}

	out, err := os.Create(dst)
	if err != nil {
		return models.PCM{}, fmt.Errorf("decode: create output: %w", err)
	}
	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		return models.PCM{}, runErr(ctx, "remote transcode body", nil, err)
	}
	if err := out.Close(); err != nil {
		return models.PCM{}, fmt.Errorf("decode: close output: %w", err)
	}
	return LoadOutput(dst, profile)
}
