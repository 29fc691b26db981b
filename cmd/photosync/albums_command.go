package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"photosync/internal/api"
)

func newAlbumsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "albums",
		Short: "List albums available on the remote library",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			client := api.NewClient(cfg)
			albums, err := client.ListAlbums(cmd.Context())
			if err != nil {
				return fmt.Errorf("list albums: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(albums) == 0 {
				fmt.Fprintln(out, "No albums found")
				return nil
			}

			rows := make([][]string, 0, len(albums))
			for _, album := range albums {
				rows = append(rows, []string{album.Title, album.ID, strconv.Itoa(album.AssetCount)})
			}
			fmt.Fprintln(out, renderTable([]string{"TITLE", "ID", "ASSETS"}, rows, 3))
			return nil
		},
	}
}
