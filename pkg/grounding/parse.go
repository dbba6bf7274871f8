package grounding

import (
	"regexp"
	"strings"

	"github.com/OFFIS-RIT/crosscheck/pkg/ai"
	"github.com/OFFIS-RIT/crosscheck/pkg/common"
)

// Extraction is the parsed response of the entity extractor.
type Extraction struct {
	Entities   common.EntitySet    `json:"entities"`
	Duplicates []ai.DuplicateGroup `json:"duplicates,omitempty"`
}

var (
	uniqueHeader    = regexp.MustCompile(`(?i)unique\s+entities`)
	duplicateHeader = regexp.MustCompile(`(?i)duplicate\s+entities`)
	duplicateGroup  = regexp.MustCompile(`\(([^():]+):([^()]*)\)`)
)

// ParseEntities reads the two-line response of the entity extractor.
//
// The "Unique Entities" list may follow its header on the same line or on
// the next non-empty line. Entities are trimmed and deduplicated
// case-insensitively, keeping the first surface form. A response without the
// header yields an empty result.
func ParseEntities(response string) Extraction {
	lines := strings.Split(strings.ReplaceAll(response, "\r\n", "\n"), "\n")

	var out Extraction
	if list, ok := listAfter(lines, uniqueHeader); ok {
		out.Entities = DedupeEntities(splitList(list))
	}
	if list, ok := listAfter(lines, duplicateHeader); ok {
		out.Duplicates = parseDuplicates(list)
	}
	if out.Entities == nil {
		out.Entities = common.EntitySet{}
	}
	return out
}

// DedupeEntities trims names and drops case-insensitive repeats.
func DedupeEntities(names []string) common.EntitySet {
	out := make(common.EntitySet, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = cleanEntity(n)
		key := ai.DedupeKey(n)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, n)
	}
	return out
}

// listAfter returns the text following header, either on the header line
// itself or on the next non-empty line.
func listAfter(lines []string, header *regexp.Regexp) (string, bool) {
	for i, line := range lines {
		loc := header.FindStringIndex(line)
		if loc == nil {
			continue
		}
		rest := stripDecoration(line[loc[1]:])
		if rest != "" {
			return rest, true
		}
		for _, next := range lines[i+1:] {
			if uniqueHeader.MatchString(next) || duplicateHeader.MatchString(next) {
				break
			}
			if next = stripDecoration(next); next != "" {
				return next, true
			}
		}
		return "", true
	}
	return "", false
}

func stripDecoration(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "*_#: \t")
	return strings.TrimSpace(s)
}

func splitList(list string) []string {
	return strings.Split(list, ",")
}

func cleanEntity(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "*`\"'-•[] \t")
	s = strings.TrimSuffix(s, ".")
	return ai.NormalizeDedupeValue(s)
}

func parseDuplicates(list string) []ai.DuplicateGroup {
	matches := duplicateGroup.FindAllStringSubmatch(list, -1)
	groups := make([]ai.DuplicateGroup, 0, len(matches))
	for _, m := range matches {
		kept := cleanEntity(m[1])
		if kept == "" {
			continue
		}
		omitted := DedupeEntities(splitList(m[2]))
		if len(omitted) == 0 {
			continue
		}
		groups = append(groups, ai.DuplicateGroup{Name: kept, Entities: omitted})
	}
	return groups
}
