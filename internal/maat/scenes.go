package maat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"maat-go/internal/model"
)

// SceneManifest is the file name that marks a scene directory.
const SceneManifest = "scene.json"

// sceneSnapshot is the published scene index. It is never mutated after
// being handed to the tracker.
type sceneSnapshot struct {
	scenes   []model.SceneEntry // newest first, then by ID
	byID     map[string]int     // scene ID → index into scenes
	keywords model.KeywordHistogram
	digest   uint64
	builtAt  time.Time
}

// sceneManifest is the subset of scene.json the index reads.
type sceneManifest struct {
	Title        string          `json:"title"`
	Keywords     json.RawMessage `json:"kwords"`
	Visibility   json.RawMessage `json:"visibility"`
	CreationDate json.RawMessage `json:"creationDate"`
}

// buildScenes scans every scene manifest and derives the scene list, the
// by-ID map and the keyword histogram from that single pass.
func (s *Service) buildScenes(ctx context.Context) (*sceneSnapshot, error) {
	files, err := s.fsmgr.Glob(ctx, s.opts.ScenesDir, "**/"+SceneManifest, ScanOptions{
		FollowSymlinks: s.opts.FollowSymlinks,
		OnlyFiles:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("scanning scenes: %w", err)
	}

	snap := &sceneSnapshot{
		scenes:   make([]model.SceneEntry, 0, len(files)),
		byID:     make(map[string]int, len(files)),
		keywords: make(model.KeywordHistogram),
		builtAt:  s.clock.Now(),
	}

	for _, f := range files {
		entry, err := s.readScene(f)
		if err != nil {
			s.logger.Warn("skipping malformed scene", "path", f, "error", err)
			continue
		}
		snap.scenes = append(snap.scenes, entry)
	}

	sortScenes(snap.scenes)

	for i, e := range snap.scenes {
		snap.byID[e.ID] = i
		for _, kw := range e.Keywords {
			snap.keywords[kw]++
		}
	}
	snap.digest = scenesDigest(snap.scenes)

	s.logger.Debug("scenes indexed", "scenes", len(snap.scenes), "keywords", len(snap.keywords))
	return snap, nil
}

// readScene parses one manifest. relPath is relative to the scenes root.
func (s *Service) readScene(relPath string) (model.SceneEntry, error) {
	sid := path.Dir(relPath)
	absPath := filepath.Join(s.opts.ScenesDir, filepath.FromSlash(relPath))

	data, err := s.fsmgr.ReadFile(absPath)
	if err != nil {
		return model.SceneEntry{}, &MalformedEntryError{Path: relPath, Err: err}
	}

	entry, err := parseSceneManifest(sid, data)
	if err != nil {
		return model.SceneEntry{}, &MalformedEntryError{Path: relPath, Err: err}
	}

	if entry.CreationDate.IsZero() {
		created, err := s.fsmgr.CreationTime(absPath)
		if err != nil {
			return model.SceneEntry{}, &MalformedEntryError{Path: relPath, Err: err}
		}
		entry.CreationDate = created.UTC()
	}
	entry.StaffPick = s.staffPicks[sid]

	return entry, nil
}

// parseSceneManifest decodes scene.json contents into an entry for sid.
// CreationDate is left zero when the manifest does not carry one.
func parseSceneManifest(sid string, data []byte) (model.SceneEntry, error) {
	var m sceneManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return model.SceneEntry{}, fmt.Errorf("decoding manifest: %w", err)
	}

	keywords, err := decodeKeywords(m.Keywords)
	if err != nil {
		return model.SceneEntry{}, fmt.Errorf("decoding kwords: %w", err)
	}
	created, err := decodeTime(m.CreationDate)
	if err != nil {
		return model.SceneEntry{}, fmt.Errorf("decoding creationDate: %w", err)
	}

	return model.SceneEntry{
		ID:           sid,
		Title:        m.Title,
		Keywords:     keywords,
		Visibility:   decodeTruthy(m.Visibility),
		CreationDate: created,
	}, nil
}

// NormalizeKeyword lowercases and trims a keyword.
func NormalizeKeyword(kw string) string {
	return strings.ToLower(strings.TrimSpace(kw))
}

// decodeKeywords accepts the keyword set either as an object whose keys are
// the keywords ({"temple":1}) or as an array of strings.
func decodeKeywords(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var names []string
	switch raw[0] {
	case '{':
		var set map[string]json.RawMessage
		if err := json.Unmarshal(raw, &set); err != nil {
			return nil, err
		}
		for k := range set {
			names = append(names, k)
		}
	case '[':
		if err := json.Unmarshal(raw, &names); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unexpected keyword set %s", raw)
	}

	out := make([]string, 0, len(names))
	for _, n := range names {
		if kw := NormalizeKeyword(n); kw != "" {
			out = append(out, kw)
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// decodeTruthy reads a visibility flag written as a boolean, a number or a string.
func decodeTruthy(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		b, err := strconv.ParseBool(t)
		if err != nil {
			return t != "" && t != "0"
		}
		return b
	default:
		return false
	}
}

// decodeTime reads a creation date written as an RFC 3339 string or as
// milliseconds since the epoch.
func decodeTime(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}

	if raw[0] == '"' {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return time.Time{}, err
		}
		if str == "" {
			return time.Time{}, nil
		}
		t, err := time.Parse(time.RFC3339, str)
		if err != nil {
			return time.Time{}, err
		}
		return t.UTC(), nil
	}

	var ms int64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}

// sortScenes orders newest first; ties and undated scenes fall back to ID.
func sortScenes(scenes []model.SceneEntry) {
	slices.SortFunc(scenes, func(a, b model.SceneEntry) int {
		if c := b.CreationDate.Compare(a.CreationDate); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// ownsScene reports whether sid lives under owner's scene directory.
func ownsScene(owner, sid string) bool {
	return owner != "" && strings.HasPrefix(sid, owner+"/")
}

// AllScenes returns every indexed scene, newest first.
func (s *Service) AllScenes(ctx context.Context) ([]model.SceneEntry, error) {
	return s.filterScenes(ctx, func(model.SceneEntry) bool { return true })
}

// PublicScenes returns the scenes whose visibility flag is set.
func (s *Service) PublicScenes(ctx context.Context) ([]model.SceneEntry, error) {
	return s.filterScenes(ctx, func(e model.SceneEntry) bool { return e.Visibility })
}

// ScenesForOwner returns the scenes stored under owner's directory.
func (s *Service) ScenesForOwner(ctx context.Context, owner string) ([]model.SceneEntry, error) {
	if owner == "" {
		return []model.SceneEntry{}, nil
	}
	return s.filterScenes(ctx, func(e model.SceneEntry) bool { return ownsScene(owner, e.ID) })
}

// ScenesByKeyword returns the scenes carrying keyword. With an empty owner
// only public scenes match; otherwise only owner's scenes match.
func (s *Service) ScenesByKeyword(ctx context.Context, keyword, owner string) ([]model.SceneEntry, error) {
	kw := NormalizeKeyword(keyword)
	if kw == "" {
		return []model.SceneEntry{}, nil
	}
	return s.filterScenes(ctx, func(e model.SceneEntry) bool {
		if owner != "" {
			if !ownsScene(owner, e.ID) {
				return false
			}
		} else if !e.Visibility {
			return false
		}
		return e.HasKeyword(kw)
	})
}

// SceneQuery combines the scene filters. Keyword takes precedence over
// Owner; Public keeps only visible scenes on top of either.
type SceneQuery struct {
	Public  bool
	Owner   string
	Keyword string
}

// Scenes lists the scenes selected by q, newest first.
func (s *Service) Scenes(ctx context.Context, q SceneQuery) ([]model.SceneEntry, error) {
	var scenes []model.SceneEntry
	var err error
	switch {
	case q.Keyword != "":
		scenes, err = s.ScenesByKeyword(ctx, q.Keyword, q.Owner)
	case q.Owner != "":
		scenes, err = s.ScenesForOwner(ctx, q.Owner)
	case q.Public:
		scenes, err = s.PublicScenes(ctx)
	default:
		scenes, err = s.AllScenes(ctx)
	}
	if err != nil || !q.Public || q.Owner == "" {
		return scenes, err
	}
	visible := scenes[:0]
	for _, e := range scenes {
		if e.Visibility {
			visible = append(visible, e)
		}
	}
	return visible, nil
}

// SceneEntry looks up a scene by ID. A scene whose manifest failed to
// parse is reported as not found.
func (s *Service) SceneEntry(ctx context.Context, sid string) (model.SceneEntry, bool, error) {
	snap, err := query(ctx, s, s.scenes)
	if err != nil || snap == nil {
		return model.SceneEntry{}, false, err
	}
	i, ok := snap.byID[sid]
	if !ok {
		return model.SceneEntry{}, false, nil
	}
	return snap.scenes[i].Clone(), true, nil
}

// KeywordHistogram returns keyword occurrence counts across all scenes.
func (s *Service) KeywordHistogram(ctx context.Context) (model.KeywordHistogram, error) {
	snap, err := query(ctx, s, s.scenes)
	if err != nil || snap == nil {
		return model.KeywordHistogram{}, err
	}
	return snap.keywords.Clone(), nil
}

// ScenesDigest returns the digest of the published scene index without
// triggering a rebuild.
func (s *Service) ScenesDigest() (uint64, bool) {
	snap, _ := s.scenes.peek()
	if snap == nil {
		return 0, false
	}
	return snap.digest, true
}

func (s *Service) filterScenes(ctx context.Context, keep func(model.SceneEntry) bool) ([]model.SceneEntry, error) {
	snap, err := query(ctx, s, s.scenes)
	if err != nil || snap == nil {
		return []model.SceneEntry{}, err
	}
	out := make([]model.SceneEntry, 0)
	for _, e := range snap.scenes {
		if keep(e) {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}
