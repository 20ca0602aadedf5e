package normalize

import (
	"strings"

	"github.com/STRATINT/feedpoller/internal/models"
)

func (d rssDocument) normalize(fetchURL string) *models.NormalizedFeed {
	base := baseURL(fetchURL)
	out := &models.NormalizedFeed{
		Title:   strings.TrimSpace(d.feed.Title),
		SiteURL: strings.TrimSpace(d.feed.Link),
		FeedURL: fetchURL,
		Entries: make([]models.NormalizedEntry, 0, len(d.feed.Items)),
	}

	for _, item := range d.feed.Items {
		if item == nil {
			continue
		}

		link := firstNonEmpty(item.Link)
		if link == "" && len(item.Links) > 0 {
			link = firstNonEmpty(item.Links...)
		}
		title := strings.TrimSpace(item.Title)
		pubDate := strings.TrimSpace(item.PubDate)

		guid := ""
		if item.GUID != nil {
			guid = strings.TrimSpace(item.GUID.Value)
		}
		if guid == "" {
			guid = stableHash(link + "|" + title + "|" + pubDate)
		}

		published := parseDate(pubDate)
		if published == nil && item.PubDateParsed != nil {
			t := item.PubDateParsed.UTC()
			published = &t
		}

		out.Entries = append(out.Entries, withHash(models.NormalizedEntry{
			GUID:        guid,
			URL:         resolveURL(link, base),
			Title:       title,
			HTML:        firstNonEmpty(item.Content, item.Description),
			PublishedAt: published,
			UpdatedAt:   published,
		}))
	}
	return out
}
