package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/STRATINT/feedpoller/internal/config"
	"github.com/STRATINT/feedpoller/internal/fetch"
	"github.com/STRATINT/feedpoller/internal/models"
	"github.com/STRATINT/feedpoller/internal/normalize"
)

var checkCmd = &cobra.Command{
	Use:   "check <url>",
	Short: "Fetch and normalize a feed without storing it",
	Long: `Fetch a feed once and print what the poller would ingest from it: the
detected format, feed metadata and every normalized entry.

Nothing is written to the database, so check works without DATABASE_URL.

Example:
  feedpoller check https://rss.nytimes.com/services/xml/rss/nyt/World.xml`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().Duration("timeout", fetch.DefaultTimeout, "fetch timeout")
	checkCmd.Flags().Bool("quiet", false, "only print the summary")
}

func runCheck(cmd *cobra.Command, args []string) error {
	feedURL := args[0]
	if err := config.ValidateFeedURL(feedURL); err != nil {
		return err
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	quiet, _ := cmd.Flags().GetBool("quiet")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fetcher := fetch.NewFetcher(cfg.Poller.UserAgent)
	result, err := fetcher.Fetch(cmd.Context(), feedURL, fetch.Options{Timeout: timeout})
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}

	feed, err := normalize.Normalize(result.Body, result.FinalURL)
	if err != nil {
		return err
	}

	printCheck(cmd.OutOrStdout(), result, feed, quiet)
	return nil
}

func printCheck(out io.Writer, result *fetch.Result, feed *models.NormalizedFeed, quiet bool) {
	fmt.Fprintf(out, "URL:      %s\n", result.FinalURL)
	fmt.Fprintf(out, "Status:   %d\n", result.Status)
	fmt.Fprintf(out, "Format:   %s\n", feed.Format)
	if feed.Title != "" {
		fmt.Fprintf(out, "Title:    %s\n", feed.Title)
	}
	if feed.SiteURL != "" {
		fmt.Fprintf(out, "Site:     %s\n", feed.SiteURL)
	}
	if result.ETag != "" {
		fmt.Fprintf(out, "ETag:     %s\n", result.ETag)
	}
	if result.LastModified != "" {
		fmt.Fprintf(out, "Modified: %s\n", result.LastModified)
	}

	withoutURL, withoutDate := 0, 0
	for i, entry := range feed.Entries {
		if entry.URL == "" {
			withoutURL++
		}
		if entry.PublishedAt == nil {
			withoutDate++
		}
		if quiet {
			continue
		}

		fmt.Fprintf(out, "\n[%d] %s\n", i+1, strings.TrimSpace(entry.Title))
		fmt.Fprintf(out, "    guid: %s\n", entry.GUID)
		if entry.URL != "" {
			fmt.Fprintf(out, "    url:  %s\n", entry.URL)
		}
		if entry.PublishedAt != nil {
			fmt.Fprintf(out, "    published: %s\n", entry.PublishedAt.Format(time.RFC3339))
		}
	}

	fmt.Fprintf(out, "\nEntries: %d (without url: %d, without date: %d)\n", len(feed.Entries), withoutURL, withoutDate)
}
