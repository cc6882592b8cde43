package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/himanishpuri/sonicres/pkg/acousticdna"
	"github.com/himanishpuri/sonicres/pkg/acousticdna/audio"
	"github.com/himanishpuri/sonicres/pkg/models"
	"github.com/himanishpuri/sonicres/pkg/utils"
)

func addCmd() *cobra.Command {
	var title, artist string
	cmd := &cobra.Command{
		Use:   "add <audio_file>",
		Short: "Fingerprint a file and add it to the catalogue",
		Long: `Fingerprint an audio file and store it in the catalogue.
When --title or --artist is omitted the value is read from the file's tags
with ffprobe.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			audioPath := args[0]
			if !utils.FileExists(audioPath) {
				return fmt.Errorf("audio file not found: %s", audioPath)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			if title == "" || artist == "" {
				meta, err := audio.ReadMetadataFFmpeg(ctx, audioPath)
				if err == nil {
					title = firstNonEmpty(title, meta.Title)
					artist = firstNonEmpty(artist, meta.Artist)
				}
			}
			if title == "" || artist == "" {
				return fmt.Errorf("--title and --artist are required (no tags found in %s)", audioPath)
			}

			return withService(func(svc acousticdna.Service) error {
				fmt.Println("Processing audio file...")
				songID, err := svc.AddSong(ctx, audioPath, title, artist)
				if err != nil {
					return fmt.Errorf("failed to add song: %w", err)
				}
				fmt.Println("\nSuccessfully added song to database!")
				fmt.Printf("   ID:      %s\n", songID)
				fmt.Printf("   Title:   %s\n", title)
				fmt.Printf("   Artist:  %s\n", artist)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Song title")
	cmd.Flags().StringVar(&artist, "artist", "", "Artist name")
	return cmd
}

func matchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "match <audio_file>",
		Short: "Find catalogue matches for an audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !utils.FileExists(args[0]) {
				return fmt.Errorf("audio file not found: %s", args[0])
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			return withService(func(svc acousticdna.Service) error {
				fmt.Println("Analyzing audio file...")
				results, err := svc.MatchSong(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to match song: %w", err)
				}
				printMatches(results, limit)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum matches to show")
	return cmd
}

func printMatches(results []models.MatchResult, limit int) {
	if len(results) == 0 {
		fmt.Println("\nNo matches found in database")
		return
	}

	fmt.Printf("\nFound %d match(es)!\n\n", len(results))
	shown := len(results)
	if limit > 0 {
		shown = min(limit, shown)
	}
	for i, result := range results[:shown] {
		fmt.Printf("%d. \"%s\" by %s\n", i+1, result.Title, result.Artist)
		fmt.Printf("   Score: %d | Confidence: %.1f%% | Offset: %dms\n\n",
			result.Score, result.Confidence, result.OffsetMs)
	}
	if len(results) > shown {
		fmt.Printf("... and %d more matches\n", len(results)-shown)
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalogue songs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(svc acousticdna.Service) error {
				songs, err := svc.ListSongs()
				if err != nil {
					return fmt.Errorf("failed to list songs: %w", err)
				}
				if len(songs) == 0 {
					fmt.Println("\nNo songs in database")
					return nil
				}

				fmt.Printf("\nFound %d song(s):\n\n", len(songs))
				for i, song := range songs {
					fmt.Printf("%d. \"%s\" by %s (ID: %s)\n", i+1, song.Title, song.Artist, song.ID)
					if song.DurationMs > 0 {
						fmt.Printf("   Duration: %s\n", formatDuration(song.DurationMs))
					}
				}
				return nil
			})
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <song_id>",
		Short: "Remove a song and its fingerprints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			songID := args[0]
			return withService(func(svc acousticdna.Service) error {
				song, err := svc.GetSongByID(songID)
				if err != nil {
					if acousticdna.IsNotFound(err) {
						return fmt.Errorf("song not found (ID: %s)", songID)
					}
					return err
				}
				if err := svc.DeleteSong(songID); err != nil {
					return fmt.Errorf("failed to delete song: %w", err)
				}

				fmt.Printf("\nSuccessfully deleted song:\n")
				fmt.Printf("   ID:     %s\n", song.ID)
				fmt.Printf("   Title:  %s\n", song.Title)
				fmt.Printf("   Artist: %s\n", song.Artist)
				return nil
			})
		},
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// formatDuration renders milliseconds as m:ss.
func formatDuration(ms int) string {
	s := ms / 1000
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
