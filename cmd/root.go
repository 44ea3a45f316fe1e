// cmd/root.go
/*
Copyright © 2025 AceTeam <dev@aceteam.ai>
*/
package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aceteam-ai/dream-cli/internal/config"
	"github.com/aceteam-ai/dream-cli/internal/ledger"
	"github.com/aceteam-ai/dream-cli/internal/ui"
)

var (
	requestFile  string
	ledgerPath   string
	noLedger     bool
	showProgress bool
	verbosity    int
	quietness    int
)

// rootCmd runs one generation when called without a subcommand
var rootCmd = &cobra.Command{
	Use:   "dream",
	Short: "Generate images on the AI Horde",
	Long: `Submits an image generation request to the AI Horde, follows it in the
queue until it finishes and saves the generated images.

Request values come from built-in defaults, the YAML request file,
special.yml/special.json, the environment (HORDE_API_KEY, HORDE_URL, .env)
and finally the flags below. Press Ctrl+C while waiting to cancel the job and
keep whatever was finished.`,
	Version:      Version,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(verbosity, quietness)

		// Log the full command that was run
		fullCmd := "dream"
		if cmd.Name() != "dream" {
			fullCmd += " " + cmd.Name()
		}
		cmd.Flags().Visit(func(f *pflag.Flag) {
			switch f.Name {
			case "api-key":
				fullCmd += " --api-key=***"
			case "verbose", "quiet":
				// counts are implied by the log level
			default:
				if f.Value.Type() == "bool" {
					fullCmd += " --" + f.Name
				} else {
					fullCmd += " --" + f.Name + "=" + f.Value.String()
				}
			}
		})
		if len(args) > 0 {
			fullCmd += " " + strings.Join(args, " ")
		}
		log.Debugf("command: %s", fullCmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := runOptions{
			load: config.LoadOptions{
				RequestFile: requestFile,
			},
			overrides: overridesFromFlags(cmd.Flags()),
			progress:  showProgress && verbosity == 0 && ui.IsTerminal(os.Stderr),
			links:     ui.IsTerminal(os.Stdout),
			stdout:    os.Stdout,
			stderr:    os.Stderr,
		}
		if !noLedger {
			opts.ledgerPath = ledgerPath
		}
		if opts.progress {
			opts.width = ui.TerminalWidth(os.Stderr)
		}

		_, err := runGeneration(context.Background(), opts, notifyInterrupt())
		return err
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// notifyInterrupt returns a channel that is closed on the first SIGINT or
// SIGTERM. A second signal gets the default behaviour and kills the process.
func notifyInterrupt() <-chan struct{} {
	interrupt := make(chan struct{})
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		signal.Stop(sigs)
		log.Warnf("Received %s, cancelling the job after the current request. Press Ctrl+C again to abort.", sig)
		close(interrupt)
	}()
	return interrupt
}

// addRequestFlags defines the flags that override request values.
func addRequestFlags(f *pflag.FlagSet) {
	f.IntP("amount", "n", 0, "Number of images to generate")
	f.StringP("model", "m", "", "Model to generate with (replaces the models list)")
	f.StringP("prompt", "p", "", "Prompt to generate an image for")
	f.IntP("width", "w", 0, "Image width, a multiple of 64")
	f.IntP("height", "l", 0, "Image height, a multiple of 64")
	f.IntP("steps", "s", 0, "Number of sampling steps")
	f.String("api-key", "", "AI Horde API key (default is the anonymous key, or HORDE_API_KEY)")
	f.StringP("filename", "f", "", "Output filename; with several images each is prefixed with its index")
	f.String("horde", "", "AI Horde base URL (default https://aihorde.net, or HORDE_URL)")
	f.Bool("nsfw", false, "Allow NSFW generations")
	f.Bool("censor-nsfw", false, "Ask workers to censor NSFW output")
	f.Bool("trusted-workers", false, "Only use trusted workers")
	f.String("source-image", "", "Source image for img2img")
	f.String("source-processing", "", "Source processing: img2img, inpainting or outpainting")
	f.String("source-mask", "", "Mask image for inpainting")
	f.Bool("dry-run", false, "Ask for the kudos cost without generating")
}

func init() {
	f := rootCmd.Flags()
	addRequestFlags(f)
	f.StringVar(&requestFile, "yml-file", config.DefaultRequestFile, "YAML request file (ignored if missing)")
	f.BoolVarP(&showProgress, "progress-bar", "b", true, "Show queue progress while waiting")
	f.StringVar(&ledgerPath, "ledger", ledger.DefaultPath(), "Path of the local run ledger")
	f.BoolVar(&noLedger, "no-ledger", false, "Do not record this run in the ledger")

	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase logging verbosity (repeatable)")
	rootCmd.PersistentFlags().CountVarP(&quietness, "quiet", "q", "Decrease logging verbosity (repeatable)")
}
