package cmd

import (
	"github.com/spf13/pflag"

	"github.com/aceteam-ai/dream-cli/internal/config"
)

// overridesFromFlags returns only the request flags the user actually set, so
// unset flags never mask the request file or environment.
func overridesFromFlags(fs *pflag.FlagSet) config.Overrides {
	return config.Overrides{
		APIKey:           stringFlag(fs, "api-key"),
		Filename:         stringFlag(fs, "filename"),
		Amount:           intFlag(fs, "amount"),
		Width:            intFlag(fs, "width"),
		Height:           intFlag(fs, "height"),
		Steps:            intFlag(fs, "steps"),
		Prompt:           stringFlag(fs, "prompt"),
		Model:            stringFlag(fs, "model"),
		Horde:            stringFlag(fs, "horde"),
		NSFW:             boolFlag(fs, "nsfw"),
		CensorNSFW:       boolFlag(fs, "censor-nsfw"),
		TrustedWorkers:   boolFlag(fs, "trusted-workers"),
		SourceImage:      stringFlag(fs, "source-image"),
		SourceProcessing: stringFlag(fs, "source-processing"),
		SourceMask:       stringFlag(fs, "source-mask"),
		DryRun:           boolFlag(fs, "dry-run"),
	}
}

func stringFlag(fs *pflag.FlagSet, name string) *string {
	if !fs.Changed(name) {
		return nil
	}
	v, err := fs.GetString(name)
	if err != nil {
		return nil
	}
	return &v
}

func intFlag(fs *pflag.FlagSet, name string) *int {
	if !fs.Changed(name) {
		return nil
	}
	v, err := fs.GetInt(name)
	if err != nil {
		return nil
	}
	return &v
}

func boolFlag(fs *pflag.FlagSet, name string) *bool {
	if !fs.Changed(name) {
		return nil
	}
	v, err := fs.GetBool(name)
	if err != nil {
		return nil
	}
	return &v
}
