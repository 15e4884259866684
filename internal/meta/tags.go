package meta

import (
	"fmt"
	"os"
	"strings"

	"github.com/dhowden/tag"
)

// ReadTags reads container tag atoms (MP4 ©cmt, ©too, ©xyz and friends)
// with dhowden/tag. Keys are lowercased; values are stringified.
func ReadTags(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags: %w", err)
	}

	tags := make(map[string]string)
	put := func(key, value string) {
		value = strings.TrimSpace(value)
		if value != "" {
			tags[key] = value
		}
	}

	put("title", m.Title())
	put("artist", m.Artist())
	put("album", m.Album())
	put("comment", m.Comment())
	put("genre", m.Genre())
	put("composer", m.Composer())
	if m.Year() > 0 {
		put("year", fmt.Sprintf("%d", m.Year()))
	}

	for key, raw := range m.Raw() {
		k := strings.ToLower(strings.TrimLeft(key, "©"))
		if _, exists := tags[k]; exists {
			continue
		}
		switch v := raw.(type) {
		case string:
			put(k, v)
		case int:
			put(k, fmt.Sprintf("%d", v))
		case bool:
			put(k, fmt.Sprintf("%t", v))
		case []byte, *tag.Picture:
			// binary atoms (covers, proprietary blobs) are not useful as tags
		default:
			put(k, fmt.Sprintf("%v", v))
		}
	}

	return tags, nil
}

// getTag retrieves a tag value from a map, trying multiple keys
func getTag(tags map[string]string, keys ...string) string {
	for _, key := range keys {
		if val, ok := tags[key]; ok && val != "" {
			return val
		}
	}
	return ""
}
