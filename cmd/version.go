// cmd/version.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aceteam-ai/dream-cli/internal/horde"
)

// Version will be set at build time
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of dream",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dream version %s\n", Version)
		fmt.Printf("Client-Agent: %s\n", horde.ClientAgent("dream-cli", Version, contactURL))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
