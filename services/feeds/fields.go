package feeds

import (
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"Gamarr/models"
)

// Mapping names the feed fields that carry an item's title and link when a
// source does not use the standard ones. Names may be plain custom elements
// ("releaseName") or namespaced extensions ("torznab:magneturl").
type Mapping struct {
	TitleField string
	LinkField  string
}

// MappingFor returns the field mapping stored on a source.
func MappingFor(src models.FeedSource) Mapping {
	return Mapping{TitleField: src.TitleField, LinkField: src.LinkField}
}

// normalizeItem resolves the title, link, guid and publish date of an item.
// ok is false when title or link are missing.
func normalizeItem(item *gofeed.Item, m Mapping) (models.NewFeedItem, bool) {
	title := strings.TrimSpace(item.Title)
	if m.TitleField != "" {
		title = strings.TrimSpace(fieldValue(item, m.TitleField))
	}

	link := strings.TrimSpace(item.Link)
	if link == "" && len(item.Enclosures) > 0 {
		link = strings.TrimSpace(item.Enclosures[0].URL)
	}
	if m.LinkField != "" {
		link = strings.TrimSpace(fieldValue(item, m.LinkField))
	}

	if title == "" || link == "" {
		return models.NewFeedItem{}, false
	}

	guid := strings.TrimSpace(item.GUID)
	if guid == "" {
		guid = link
	}

	var published *time.Time
	switch {
	case item.PublishedParsed != nil:
		t := item.PublishedParsed.UTC()
		published = &t
	case item.UpdatedParsed != nil:
		t := item.UpdatedParsed.UTC()
		published = &t
	}

	return models.NewFeedItem{GUID: guid, Title: title, Link: link, PublishedAt: published}, true
}

func fieldValue(item *gofeed.Item, name string) string {
	switch strings.ToLower(name) {
	case "title":
		return item.Title
	case "link":
		return item.Link
	case "guid", "id":
		return item.GUID
	case "description":
		return item.Description
	case "enclosure":
		if len(item.Enclosures) > 0 {
			return item.Enclosures[0].URL
		}
		return ""
	}

	if v, ok := item.Custom[name]; ok {
		return v
	}

	ns, local, namespaced := strings.Cut(name, ":")
	if namespaced {
		return extensionValue(item.Extensions[ns], local)
	}
	for _, exts := range item.Extensions {
		if v := extensionValue(exts, name); v != "" {
			return v
		}
	}
	return ""
}

// extensionValue reads an element's text or url attribute. Torznab style
// <torznab:attr name="magneturl" value="..."/> elements are found by name.
func extensionValue(exts map[string][]ext.Extension, local string) string {
	for _, e := range exts[local] {
		if e.Value != "" {
			return e.Value
		}
		if v := e.Attrs["url"]; v != "" {
			return v
		}
	}
	for _, e := range exts["attr"] {
		if e.Attrs["name"] == local {
			return e.Attrs["value"]
		}
	}
	return ""
}
