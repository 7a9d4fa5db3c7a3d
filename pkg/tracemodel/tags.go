// Tag deduplication and prefix-priority ordering
// Both functions return new slices and leave their input untouched
package tracemodel

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type tagPair struct {
	key   string
	value any
}

// DeduplicateTags drops every repeat of an already seen (key, value) pair.
// One warning is returned per distinct duplicated pair, in order of first detection.
// Values of non-comparable types never count as duplicates.
func DeduplicateTags(tags []KeyValue) ([]KeyValue, []string) {
	out := make([]KeyValue, 0, len(tags))
	seen := make(map[tagPair]bool, len(tags))
	var warnings []string
	warned := make(map[string]bool)

	for _, tag := range tags {
		if !isComparable(tag.Value) {
			out = append(out, tag)
			continue
		}
		p := tagPair{tag.Key, tag.Value}
		if !seen[p] {
			seen[p] = true
			out = append(out, tag)
			continue
		}
		pair := fmt.Sprintf("%s:%v", tag.Key, tag.Value)
		if !warned[pair] {
			warned[pair] = true
			warnings = append(warnings, `Duplicate tag "`+pair+`"`)
		}
	}
	return out, warnings
}

func isComparable(v any) bool {
	if v == nil {
		return true
	}
	return reflect.ValueOf(v).Comparable()
}

// OrderTags sorts tags by lower-cased key, except that keys starting with one
// of topPrefixes come first. For each prefix in turn, a key matching it sorts
// before a key that does not.
func OrderTags(tags []KeyValue, topPrefixes []string) []KeyValue {
	lower := cases.Lower(language.Und)
	prefixes := make([]string, len(topPrefixes))
	for i, p := range topPrefixes {
		prefixes[i] = lower.String(p)
	}

	type keyed struct {
		tag KeyValue
		key string
	}
	items := make([]keyed, len(tags))
	for i, tag := range tags {
		items[i] = keyed{tag: tag, key: lower.String(tag.Key)}
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].key, items[j].key
		for _, p := range prefixes {
			ap, bp := strings.HasPrefix(a, p), strings.HasPrefix(b, p)
			if ap != bp {
				return ap
			}
		}
		return a < b
	})

	out := make([]KeyValue, len(items))
	for i, it := range items {
		out[i] = it.tag
	}
	return out
}
