package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultSeeds are the feeds added by "seed" when no URLs are given.
var DefaultSeeds = []string{
	"https://news.ycombinator.com/rss",
	"http://feeds.arstechnica.com/arstechnica/index/",
	"https://www.theverge.com/rss/index.xml",
}

// SeedFile is the YAML document read by "seed -f".
//
//	feeds:
//	  - https://example.com/feed.xml
//	  - url: https://example.org/atom.xml
type SeedFile struct {
	Feeds []SeedFeed `yaml:"feeds"`
}

// SeedFeed accepts either a bare URL or a mapping with a url key.
type SeedFeed struct {
	URL string `yaml:"url"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *SeedFeed) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		s.URL = node.Value
		return nil
	}
	type plain SeedFeed
	return node.Decode((*plain)(s))
}

// LoadSeedFile reads feed URLs from a YAML seed file.
func LoadSeedFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return ParseSeeds(f)
}

// ParseSeeds decodes a seed document and validates every URL.
func ParseSeeds(r io.Reader) ([]string, error) {
	var doc SeedFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode seed file: %w", err)
	}

	urls := make([]string, 0, len(doc.Feeds))
	for i, feed := range doc.Feeds {
		u := strings.TrimSpace(feed.URL)
		if err := ValidateFeedURL(u); err != nil {
			return nil, fmt.Errorf("feeds[%d]: %w", i, err)
		}
		urls = append(urls, u)
	}
	return urls, nil
}

// ValidateFeedURL requires an absolute http or https URL.
func ValidateFeedURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid feed URL %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid feed URL %q: must be an absolute http(s) URL", raw)
	}
	return nil
}
