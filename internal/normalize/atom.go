package normalize

import (
	"strings"

	"github.com/mmcdole/gofeed/atom"

	"github.com/STRATINT/feedpoller/internal/models"
)

func (d atomDocument) normalize(fetchURL string) *models.NormalizedFeed {
	base := baseURL(fetchURL)
	out := &models.NormalizedFeed{
		Title:   strings.TrimSpace(d.feed.Title),
		SiteURL: firstNonEmpty(pickAtomLink(d.feed.Links, "alternate"), pickAtomLink(d.feed.Links, "self"), base),
		FeedURL: fetchURL,
		Entries: make([]models.NormalizedEntry, 0, len(d.feed.Entries)),
	}

	for _, entry := range d.feed.Entries {
		if entry == nil {
			continue
		}

		guid := strings.TrimSpace(entry.ID)
		if guid == "" {
			guid = hashJSON(entry)
		}

		link := firstNonEmpty(pickAtomLink(entry.Links, "alternate"), base)

		html := ""
		if entry.Content != nil {
			html = strings.TrimSpace(entry.Content.Value)
		}
		if html == "" {
			html = strings.TrimSpace(entry.Summary)
		}

		out.Entries = append(out.Entries, withHash(models.NormalizedEntry{
			GUID:        guid,
			URL:         resolveURL(link, base),
			Title:       strings.TrimSpace(entry.Title),
			HTML:        html,
			PublishedAt: parseDate(firstNonEmpty(entry.Published, entry.Updated)),
			UpdatedAt:   parseDate(firstNonEmpty(entry.Updated, entry.Published)),
		}))
	}
	return out
}

// pickAtomLink returns the href of the first link with the given rel, or the
// first link with any href when none matches.
func pickAtomLink(links []*atom.Link, rel string) string {
	for _, l := range links {
		if l != nil && strings.EqualFold(strings.TrimSpace(l.Rel), rel) && strings.TrimSpace(l.Href) != "" {
			return strings.TrimSpace(l.Href)
		}
	}
	for _, l := range links {
		if l != nil && strings.TrimSpace(l.Href) != "" {
			return strings.TrimSpace(l.Href)
		}
	}
	return ""
}
