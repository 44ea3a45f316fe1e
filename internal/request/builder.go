// Package request assembles the Horde job payload from the merged configuration.
package request

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"maps"
	"os"
	"slices"

	_ "golang.org/x/image/webp"

	"github.com/aceteam-ai/dream-cli/internal/config"
	"github.com/aceteam-ai/dream-cli/internal/horde"
)

// Build creates the job request for cfg. The params map and model list are
// copied so later config changes cannot reach the submitted request.
func Build(cfg *config.Config) (horde.JobRequest, error) {
	req := horde.JobRequest{
		Prompt:           cfg.Prompt,
		Params:           maps.Clone(cfg.Params),
		NSFW:             cfg.NSFW,
		CensorNSFW:       cfg.CensorNSFW,
		TrustedWorkers:   cfg.TrustedWorkers,
		Models:           slices.Clone(cfg.Models),
		R2:               cfg.R2,
		DryRun:           cfg.DryRun,
		SourceProcessing: cfg.SourceProcessing,
	}

	if cfg.SourceImage != "" {
		img, err := EncodeImage(cfg.SourceImage)
		if err != nil {
			return horde.JobRequest{}, fmt.Errorf("source image: %w", err)
		}
		req.SourceImage = img
	}
	if cfg.SourceMask != "" {
		mask, err := EncodeImage(cfg.SourceMask)
		if err != nil {
			return horde.JobRequest{}, fmt.Errorf("source mask: %w", err)
		}
		req.SourceMask = mask
	}
	return req, nil
}

// EncodeImage reads an image file, checks that it decodes as PNG, JPEG, GIF or
// WebP, and returns its bytes base64-encoded.
func EncodeImage(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("could not read %s: %w", path, err)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("%s is not a supported image: %w", path, err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
