package normalize

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/STRATINT/feedpoller/internal/models"
)

// looseString decodes a JSON string and treats any other JSON value as
// absent, so one mistyped optional field cannot reject a whole feed.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		*s = ""
		return nil
	}
	*s = looseString(v)
	return nil
}

func (s looseString) String() string {
	return strings.TrimSpace(string(s))
}

// jsonFeed is the subset of a JSON Feed document the poller reads.
type jsonFeed struct {
	Version     looseString     `json:"version"`
	Title       looseString     `json:"title"`
	HomePageURL looseString     `json:"home_page_url"`
	Items       json.RawMessage `json:"items"`
}

type jsonItem struct {
	ID            json.RawMessage `json:"id"`
	URL           looseString     `json:"url"`
	ExternalURL   looseString     `json:"external_url"`
	Title         looseString     `json:"title"`
	ContentHTML   looseString     `json:"content_html"`
	ContentText   looseString     `json:"content_text"`
	DatePublished looseString     `json:"date_published"`
	DateModified  looseString     `json:"date_modified"`
}

// decodeJSONFeed decodes body when it is a JSON object carrying items or a
// JSON Feed version. It returns nil for anything else, including malformed
// JSON, so the body can be retried as XML.
func decodeJSONFeed(body string) *jsonFeed {
	var feed jsonFeed
	if err := json.Unmarshal([]byte(body), &feed); err != nil {
		return nil
	}
	if len(feed.Items) > 0 && string(feed.Items) != "null" {
		return &feed
	}
	if strings.Contains(feed.Version.String(), "jsonfeed") {
		return &feed
	}
	return nil
}

// items returns the raw item objects. A non-array items member yields none.
func (f *jsonFeed) items() []json.RawMessage {
	var items []json.RawMessage
	if err := json.Unmarshal(f.Items, &items); err != nil {
		return nil
	}
	return items
}

// guid returns the item id when it is a non-empty string.
func (it jsonItem) guid() string {
	var id string
	if err := json.Unmarshal(it.ID, &id); err != nil {
		return ""
	}
	return strings.TrimSpace(id)
}

func (d jsonDocument) normalize(fetchURL string) *models.NormalizedFeed {
	base := baseURL(fetchURL)
	raw := d.feed.items()
	out := &models.NormalizedFeed{
		Title:   d.feed.Title.String(),
		SiteURL: firstNonEmpty(d.feed.HomePageURL.String(), base),
		FeedURL: fetchURL,
		Entries: make([]models.NormalizedEntry, 0, len(raw)),
	}

	for _, data := range raw {
		if string(data) == "null" {
			continue
		}

		// Items that are not objects keep only their hashed identity.
		var item jsonItem
		_ = json.Unmarshal(data, &item)

		guid := item.guid()
		if guid == "" {
			guid = hashRawJSON(data)
		}

		html := item.ContentHTML.String()
		text := ""
		if html == "" {
			text = item.ContentText.String()
		}

		published := item.DatePublished.String()
		out.Entries = append(out.Entries, withHash(models.NormalizedEntry{
			GUID:        guid,
			URL:         resolveURL(firstNonEmpty(item.URL.String(), item.ExternalURL.String()), base),
			Title:       item.Title.String(),
			HTML:        html,
			Text:        text,
			PublishedAt: parseDate(published),
			UpdatedAt:   parseDate(firstNonEmpty(item.DateModified.String(), published)),
		}))
	}
	return out
}

// hashRawJSON hashes the compact form of data, keeping member order as
// written.
func hashRawJSON(data json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return stableHash(string(data))
	}
	return stableHash(buf.String())
}
