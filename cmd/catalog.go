/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// catalogCmd represents the catalog command
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the firmware versions in the catalog",
	Long: `List every device, firmware and version in the catalog index.

The catalog is a directory or http(s) base URL holding firmware/config.json
and the manifests it points to.

Example usage:
  serialflash catalog
  serialflash catalog --catalog ./firmware-repo
  serialflash catalog --catalog https://fw.example.com/ --plain`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		plain, _ := cmd.Flags().GetBool("plain")

		store, err := openCatalog(app.log)
		if err != nil {
			fail(err)
		}
		idx, err := store.Index(cmd.Context())
		if err != nil {
			fail(err)
		}

		entries := idx.Entries()
		if len(entries) == 0 {
			fmt.Printf("No firmware versions in %s\n", store.Root())
			return
		}

		if plain {
			for _, e := range entries {
				fmt.Printf("%s\t%s\n", e.Version, e.Release.ManifestPath)
			}
			return
		}

		rows := make([]map[string]any, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, map[string]any{
				"device":   e.Device.Name,
				"firmware": e.Firmware.Name,
				"version":  e.Release.Name,
				"id":       e.Version.String(),
				"manifest": e.Release.ManifestPath,
			})
		}
		fmt.Printf("%d version(s) in %s:\n", len(entries), store.Root())
		fmt.Println(renderStatic([]column{
			{"device", "Device", 14},
			{"firmware", "Firmware", 16},
			{"version", "Version", 12},
			{"id", "ID", 30},
			{"manifest", "Manifest", 36},
		}, rows))
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)

	catalogCmd.Flags().Bool("plain", false, "Print one tab separated line per version")
}
