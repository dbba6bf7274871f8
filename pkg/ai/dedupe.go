package ai

import (
	"strings"
)

// DuplicateGroup represents a group of duplicate entities with a canonical name
type DuplicateGroup struct {
	Name     string   `json:"canonicalName" jsonschema_description:"The entity name that was kept."`
	Entities []string `json:"entities" jsonschema_description:"Surface forms that were omitted as duplicates of the kept entity."`
}

// EntityExtractionResponse is the schema constrained answer of the entity
// extractor.
type EntityExtractionResponse struct {
	UniqueEntities []string         `json:"uniqueEntities" jsonschema_description:"All unique entities found in the text."`
	Duplicates     []DuplicateGroup `json:"duplicates" jsonschema_description:"Groups of omitted duplicates per kept entity."`
}

// NormalizeDedupeValue standardizes names for dedupe comparisons.
func NormalizeDedupeValue(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.Join(strings.Fields(value), " ")
	return value
}

// DedupeKey returns the comparison key of an entity name. Names that only
// differ in case or whitespace share a key.
func DedupeKey(value string) string {
	return strings.ToLower(NormalizeDedupeValue(value))
}
