package maat

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"maat-go/internal/model"
)

// DefaultInterval is how long a rebuilt namespace stays fresh.
const DefaultInterval = 10 * time.Second

// Options configures a Service.
type Options struct {
	// Name is reported in Stats.
	Name string

	// ScenesDir, CollectionsDir and WebappsDir are the scanned roots.
	ScenesDir      string
	CollectionsDir string
	WebappsDir     string

	// Interval is the freshness window of every namespace.
	Interval time.Duration

	FollowSymlinks bool

	// SharedOwner names the collection whose assets are listed for every
	// owner (the "samples" collection). Empty disables sharing.
	SharedOwner string

	// Extensions lists the file extensions (".glb", ...) indexed per kind.
	Extensions map[AssetKind][]string

	// Exclusions filters derived or internal artifacts out of collections.
	Exclusions ExclusionRules

	// StaffPicks lists scene IDs flagged as staff picks.
	StaffPicks []string
}

// DefaultOptions returns Options rooted at dataDir with the stock layout.
func DefaultOptions(dataDir string) Options {
	return Options{
		ScenesDir:      filepath.Join(dataDir, "scenes"),
		CollectionsDir: filepath.Join(dataDir, "collections"),
		WebappsDir:     filepath.Join(dataDir, "webapps"),
		Interval:       DefaultInterval,
		FollowSymlinks: true,
		SharedOwner:    "samples",
		Extensions:     DefaultExtensions(),
	}
}

// DefaultExtensions returns the stock asset extensions per kind.
func DefaultExtensions() map[AssetKind][]string {
	return map[AssetKind][]string{
		KindModels:    {".gltf", ".glb", ".json", ".ply", ".e57", ".spz", ".splat"},
		KindPanoramas: {".jpg", ".hdr", ".exr", ".mp4", ".webm"},
		KindMedia:     {".jpg", ".png", ".mp4", ".webm", ".wav", ".mp3"},
	}
}

// Service is the query façade over the per-namespace indexes. Every query
// checks its namespace's staleness, starts or joins a rebuild if one is
// owed, then answers from the published snapshot.
type Service struct {
	opts     Options
	fsmgr    FilesystemManager
	users    UserStore
	recorder RebuildRecorder
	metrics  Metrics
	logger   Logger
	clock    Clock
	idgen    IDGenerator

	life        *lifecycle
	scenes      *tracker[sceneSnapshot]
	apps        *tracker[appSnapshot]
	userRecords *tracker[userSnapshot]
	collections *xsync.MapOf[string, *tracker[model.CollectionIndex]]
	staffPicks  map[string]bool
}

// NewService creates a Service with the provided dependencies.
// recorder and metrics may be nil. The caller must call Close when done.
func NewService(opts Options, fsmgr FilesystemManager, users UserStore, recorder RebuildRecorder, metrics Metrics, logger Logger, clock Clock, idgen IDGenerator) *Service {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Extensions == nil {
		opts.Extensions = DefaultExtensions()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}

	s := &Service{
		opts:        opts,
		fsmgr:       fsmgr,
		users:       users,
		recorder:    recorder,
		metrics:     metrics,
		logger:      logger,
		clock:       clock,
		idgen:       idgen,
		life:        &lifecycle{},
		collections: xsync.NewMapOf[string, *tracker[model.CollectionIndex]](),
		staffPicks:  make(map[string]bool, len(opts.StaffPicks)),
	}
	for _, sid := range opts.StaffPicks {
		s.staffPicks[sid] = true
	}

	s.scenes = newTracker(NamespaceScenes, opts.Interval, clock, s.life,
		s.buildScenes, func(sn *sceneSnapshot) int { return len(sn.scenes) }, s.onRebuild)
	s.apps = newTracker(NamespaceApps, opts.Interval, clock, s.life,
		s.buildApps, func(sn *appSnapshot) int { return len(sn.apps) }, s.onRebuild)
	s.userRecords = newTracker(NamespaceUsers, opts.Interval, clock, s.life,
		s.buildUsers, func(sn *userSnapshot) int { return len(sn.users) }, s.onRebuild)

	return s
}

// Close stops accepting queries and waits for the rebuilds in flight.
// Queries issued afterwards fail with ErrClosed.
func (s *Service) Close() error {
	s.life.close()
	return nil
}

// Refresh marks a namespace stale and waits for it to be rebuilt. Unlike
// the queries it reports a failed rebuild even when an earlier snapshot
// is still being served.
func (s *Service) Refresh(ctx context.Context, ns Namespace) error {
	if owner, ok := ns.Owner(); ok {
		t, err := s.collectionTracker(owner)
		if err != nil {
			return err
		}
		return refresh(ctx, t)
	}

	switch ns {
	case NamespaceScenes:
		return refresh(ctx, s.scenes)
	case NamespaceApps:
		return refresh(ctx, s.apps)
	case NamespaceUsers:
		return refresh(ctx, s.userRecords)
	default:
		return fmt.Errorf("unknown namespace: %s", ns)
	}
}

func refresh[T any](ctx context.Context, t *tracker[T]) error {
	t.invalidate()
	_, _, err := t.get(ctx)
	return err
}

// NamespaceStatus describes the published state of one namespace.
type NamespaceStatus struct {
	Namespace Namespace
	State     State
	Entries   int
	Digest    uint64
	BuiltAt   time.Time
	Rebuilds  int
}

// Status reports every known namespace without triggering rebuilds.
func (s *Service) Status() []NamespaceStatus {
	out := []NamespaceStatus{
		statusOf(s.scenes, func(sn *sceneSnapshot) (int, uint64, time.Time) {
			return len(sn.scenes), sn.digest, sn.builtAt
		}),
		statusOf(s.apps, func(sn *appSnapshot) (int, uint64, time.Time) {
			return len(sn.apps), sn.digest, sn.builtAt
		}),
		statusOf(s.userRecords, func(sn *userSnapshot) (int, uint64, time.Time) {
			return len(sn.users), 0, sn.builtAt
		}),
	}
	s.collections.Range(func(_ string, t *tracker[model.CollectionIndex]) bool {
		out = append(out, statusOf(t, func(c *model.CollectionIndex) (int, uint64, time.Time) {
			return c.Len(), collectionDigest(c), time.Time{}
		}))
		return true
	})
	return out
}

func statusOf[T any](t *tracker[T], describe func(*T) (int, uint64, time.Time)) NamespaceStatus {
	snap, state := t.peek()
	st := NamespaceStatus{Namespace: t.ns, State: state, Rebuilds: t.rebuildCount()}
	if snap != nil {
		st.Entries, st.Digest, st.BuiltAt = describe(snap)
	}
	return st
}

// query resolves a tracker to a snapshot and applies the failure policy:
// a failed rebuild with an earlier snapshot answers from that snapshot; a
// failed rebuild with no snapshot yet returns nil and the *ScanError.
func query[T any](ctx context.Context, s *Service, t *tracker[T]) (*T, error) {
	snap, coalesced, err := t.get(ctx)
	s.metrics.ObserveQuery(t.ns.Kind(), coalesced)
	if err == nil {
		return snap, nil
	}
	if !IsScanError(err) {
		return nil, err
	}
	if snap != nil {
		s.logger.Warn("serving previous snapshot", "namespace", t.ns.String(), "error", err)
		return snap, nil
	}
	return nil, err
}

func (s *Service) onRebuild(rep rebuildReport) {
	rec := RebuildRecord{
		ID:         s.idgen.New(),
		Namespace:  rep.ns,
		StartedAt:  rep.started,
		FinishedAt: rep.finished,
		Entries:    rep.entries,
	}
	if rep.err != nil {
		rec.Error = rep.err.Error()
		s.logger.Warn("rebuild failed", "namespace", rep.ns.String(), "error", rep.err)
	} else {
		s.logger.Debug("rebuild complete", "namespace", rep.ns.String(), "entries", rep.entries,
			"duration", rec.Duration().String())
	}

	s.metrics.ObserveRebuild(rep.ns.Kind(), rec.Duration(), rep.entries, rep.err)

	if err := s.recorder.RecordRebuild(context.Background(), rec); err != nil {
		s.logger.Error("recording rebuild", "namespace", rep.ns.String(), "error", err)
	}
}

// RecentRebuilds returns the latest rebuild records, newest first.
func (s *Service) RecentRebuilds(ctx context.Context, limit int) ([]RebuildRecord, error) {
	recs, err := s.recorder.RecentRebuilds(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("reading rebuild history: %w", err)
	}
	return recs, nil
}
