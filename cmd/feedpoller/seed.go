package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/STRATINT/feedpoller/internal/config"
	"github.com/STRATINT/feedpoller/internal/database"
)

var seedCmd = &cobra.Command{
	Use:   "seed [url...]",
	Short: "Add feeds to poll",
	Long: `Add feed URLs to the feeds table. URLs already present are left
untouched. New feeds are due immediately.

URLs come from the arguments, from a YAML file given with -f, or, when
neither is given, from a built-in default list.

Seed file format:
  feeds:
    - https://example.com/feed.xml
    - url: https://example.org/atom.xml

Example:
  feedpoller seed https://example.com/feed.xml
  feedpoller seed -f seeds.yaml`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().StringP("file", "f", "", "path to a YAML seed file")
}

// seedURLs resolves the feed URLs to seed from arguments and the seed file.
func seedURLs(args []string, file string) ([]string, error) {
	urls := make([]string, 0, len(args))
	for _, arg := range args {
		if err := config.ValidateFeedURL(arg); err != nil {
			return nil, err
		}
		urls = append(urls, arg)
	}

	if file != "" {
		fromFile, err := config.LoadSeedFile(file)
		if err != nil {
			return nil, err
		}
		urls = append(urls, fromFile...)
	}

	if len(args) == 0 && file == "" {
		urls = append(urls, config.DefaultSeeds...)
	}
	return urls, nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	urls, err := seedURLs(args, file)
	if err != nil {
		return err
	}

	env, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close()

	added, err := database.NewFeedRepository(env.db).SeedFeeds(cmd.Context(), urls)
	if err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}

	env.logger.Info("feeds seeded", "requested", len(urls), "added", added)
	fmt.Fprintf(cmd.OutOrStdout(), "seeded %d of %d feed(s)\n", added, len(urls))
	return nil
}
