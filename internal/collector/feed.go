package collector

import (
	"bytes"
	"context"

	"github.com/LJTian/HeadlineHub/internal/source"
	"github.com/mmcdole/gofeed"
)

const feedAccept = "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8"

// feedFetcher 拉取 RSS/Atom，交给 gofeed 解析
type feedFetcher struct {
	c *Collector
}

func (f *feedFetcher) fetch(ctx context.Context, spec source.Spec, target string) ([]NewsItem, error) {
	body, err := f.c.get(ctx, spec, target, feedAccept)
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{Source: spec.Name, Format: "feed", Err: err}
	}

	items := make([]NewsItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		link := it.Link
		if link == "" && len(it.Links) > 0 {
			link = it.Links[0]
		}
		desc := it.Description
		if desc == "" {
			desc = it.Content
		}
		item := NewsItem{
			Title:       it.Title,
			URL:         link,
			Source:      feed.Title,
			Description: desc,
		}
		switch {
		case it.PublishedParsed != nil:
			item.PublishedAt = *it.PublishedParsed
		case it.UpdatedParsed != nil:
			item.PublishedAt = *it.UpdatedParsed
		}
		items = append(items, item)
	}
	return items, nil
}
