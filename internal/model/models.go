package model

import (
	"slices"
	"time"
)

// SceneEntry is one scene discovered under the scenes root.
// ID is the scene directory relative to the scenes root (e.g. "alice/site1").
type SceneEntry struct {
	ID           string    `json:"sid"`
	Title        string    `json:"title,omitempty"`
	Keywords     []string  `json:"kwords,omitempty"` // lowercased, sorted, unique
	Visibility   bool      `json:"visibility,omitempty"`
	CreationDate time.Time `json:"creationDate"`
	StaffPick    bool      `json:"staffpick,omitempty"`
}

// HasKeyword reports whether the scene carries the (already normalized) keyword.
func (e SceneEntry) HasKeyword(kw string) bool {
	_, found := slices.BinarySearch(e.Keywords, kw)
	return found
}

// Clone returns a copy that shares no memory with e.
func (e SceneEntry) Clone() SceneEntry {
	e.Keywords = slices.Clone(e.Keywords)
	return e
}

// KeywordHistogram maps a keyword to the number of scenes carrying it.
type KeywordHistogram map[string]int

// Clone returns an independent copy of the histogram.
func (h KeywordHistogram) Clone() KeywordHistogram {
	out := make(KeywordHistogram, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// CollectionIndex lists the primary assets visible to one owner.
// Paths are relative to the collections root, slash separated.
type CollectionIndex struct {
	Models    []string `json:"models"`
	Panoramas []string `json:"panoramas"`
	Media     []string `json:"media"`
}

// Clone returns a copy that shares no memory with c.
func (c CollectionIndex) Clone() CollectionIndex {
	return CollectionIndex{
		Models:    nonNil(slices.Clone(c.Models)),
		Panoramas: nonNil(slices.Clone(c.Panoramas)),
		Media:     nonNil(slices.Clone(c.Media)),
	}
}

// Len returns the total number of assets in the collection.
func (c CollectionIndex) Len() int {
	return len(c.Models) + len(c.Panoramas) + len(c.Media)
}

// AppEntry is one web-app found under the web-apps root.
type AppEntry struct {
	ID      string `json:"wappid"`
	HasIcon bool   `json:"icon"`
	HasData bool   `json:"data"`
}

// UserRecord is a read-only account entry loaded from the users file.
// Extra holds the remaining fields of the record untouched.
type UserRecord struct {
	Username string         `json:"username"`
	Admin    bool           `json:"admin,omitempty"`
	Extra    map[string]any `json:"-"`
}

// Stats aggregates counts across every namespace.
type Stats struct {
	Name         string           `json:"name,omitempty"`
	ScenesTotal  int              `json:"scenesTot"`
	ScenesPublic int              `json:"scenesPub"`
	Users        int              `json:"users"`
	Models       int              `json:"models"`
	Panoramas    int              `json:"panos"`
	Media        int              `json:"media"`
	Apps         int              `json:"apps"`
	Keywords     KeywordHistogram `json:"kwords"`
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
