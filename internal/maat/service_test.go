package maat_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"maat-go/internal/maat"
	"maat-go/internal/model"
	"maat-go/internal/testutil"
)

func statusOf(t *testing.T, svc *maat.Service, ns maat.Namespace) maat.NamespaceStatus {
	t.Helper()
	for _, st := range svc.Status() {
		if st.Namespace == ns {
			return st
		}
	}
	t.Fatalf("namespace %s not in Status()", ns)
	return maat.NamespaceStatus{}
}

func TestService_CoalescesConcurrentQueries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write(t, map[string]string{
		"scenes/alice/site1/scene.json": sceneJSON("Site 1", true, "2024-01-01T00:00:00Z", "temple"),
	})

	started, release := f.fsm.Block()

	const callers = 16
	var wg sync.WaitGroup
	results := make([][]model.SceneEntry, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.svc.AllScenes(ctx)
		}()
	}

	<-started
	if st := statusOf(t, f.svc, maat.NamespaceScenes); st.State != maat.StateRebuilding {
		t.Errorf("State during scan = %v, want rebuilding", st.State)
	}
	// Give the remaining callers time to attach to the running rebuild.
	time.Sleep(20 * time.Millisecond)
	release()
	wg.Wait()

	if got := f.fsm.GlobCalls(maat.SceneManifest); got != 1 {
		t.Errorf("scene scans = %d, want 1", got)
	}
	if got := statusOf(t, f.svc, maat.NamespaceScenes).Rebuilds; got != 1 {
		t.Errorf("Rebuilds = %d, want 1", got)
	}
	for i := range callers {
		if errs[i] != nil {
			t.Errorf("caller %d error = %v", i, errs[i])
			continue
		}
		if len(results[i]) != 1 || results[i][0].ID != "alice/site1" {
			t.Errorf("caller %d got %v, want [alice/site1]", i, sceneIDs(results[i]))
		}
	}
}

func TestService_NamespacesRebuildIndependently(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write(t, map[string]string{
		"scenes/alice/site1/scene.json":  sceneJSON("Site 1", true, ""),
		"webapps/viewer/app.webmanifest": "{}",
	})

	if _, err := f.svc.AllScenes(ctx); err != nil {
		t.Fatalf("AllScenes() error = %v", err)
	}
	if got := f.fsm.GlobCalls("app.webmanifest"); got != 0 {
		t.Errorf("apps scanned by a scenes query: %d scans", got)
	}
	if _, err := f.svc.Apps(ctx); err != nil {
		t.Fatalf("Apps() error = %v", err)
	}
	if got := f.fsm.GlobCalls(maat.SceneManifest); got != 1 {
		t.Errorf("scene scans = %d, want 1", got)
	}
}

func TestService_RebuildIsInvisibleUntilPublished(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write(t, map[string]string{
		"scenes/alice/s1/scene.json": sceneJSON("S1", true, "", "k"),
	})
	if _, err := f.svc.AllScenes(ctx); err != nil {
		t.Fatalf("AllScenes() error = %v", err)
	}
	before, _ := f.svc.ScenesDigest()

	f.write(t, map[string]string{
		"scenes/alice/s2/scene.json": sceneJSON("S2", true, "", "k"),
		"scenes/bob/s3/scene.json":   sceneJSON("S3", true, "", "k"),
	})

	started, release := f.fsm.Block()
	done := make(chan error, 1)
	go func() { done <- f.svc.Refresh(ctx, maat.NamespaceScenes) }()
	<-started

	st := statusOf(t, f.svc, maat.NamespaceScenes)
	if st.State != maat.StateRebuilding {
		t.Errorf("State = %v, want rebuilding", st.State)
	}
	if st.Entries != 1 {
		t.Errorf("Entries during rebuild = %d, want 1 (previous snapshot)", st.Entries)
	}
	if d, _ := f.svc.ScenesDigest(); d != before {
		t.Error("digest changed before the rebuild finished")
	}

	release()
	if err := <-done; err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got := statusOf(t, f.svc, maat.NamespaceScenes).Entries; got != 3 {
		t.Errorf("Entries after rebuild = %d, want 3", got)
	}
}

func TestService_ConcurrentReadsSeeConsistentSnapshots(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write(t, map[string]string{
		"scenes/alice/s0/scene.json": sceneJSON("S0", true, "", "shared", "s0"),
	})

	const rounds = 20
	stop := make(chan struct{})
	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		defer close(stop)
		for i := 1; i <= rounds; i++ {
			id := fmt.Sprintf("s%d", i)
			dir := filepath.Join(f.dir, "scenes", "alice", id)
			if err := os.MkdirAll(dir, 0755); err != nil {
				t.Errorf("mkdir: %v", err)
				return
			}
			manifest := sceneJSON(id, true, "", "shared", id)
			if err := os.WriteFile(filepath.Join(dir, maat.SceneManifest), []byte(manifest), 0644); err != nil {
				t.Errorf("write: %v", err)
				return
			}
			if err := f.svc.Refresh(ctx, maat.NamespaceScenes); err != nil {
				t.Errorf("Refresh() error = %v", err)
				return
			}
		}
	}()

	var readers sync.WaitGroup
	for range 4 {
		readers.Add(1)
		go func() {
			defer readers.Done()
			last := 0
			for {
				select {
				case <-stop:
					return
				default:
				}
				st, err := f.svc.Stats(ctx)
				if err != nil {
					t.Errorf("Stats() error = %v", err)
					return
				}
				// Every scene carries "shared" and one keyword of its own.
				if st.Keywords["shared"] != st.ScenesTotal || len(st.Keywords) != st.ScenesTotal+1 {
					t.Errorf("inconsistent snapshot: %d scenes, histogram %v", st.ScenesTotal, st.Keywords)
					return
				}
				if st.ScenesTotal < last {
					t.Errorf("scene count went back from %d to %d", last, st.ScenesTotal)
					return
				}
				last = st.ScenesTotal
			}
		}()
	}

	writer.Wait()
	readers.Wait()

	all, err := f.svc.AllScenes(ctx)
	if err != nil {
		t.Fatalf("AllScenes() error = %v", err)
	}
	if len(all) != rounds+1 {
		t.Errorf("len(AllScenes()) = %d, want %d", len(all), rounds+1)
	}
}

func TestService_UnchangedTreeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.users.SetUsers(model.UserRecord{Username: "alice"})
	f.write(t, map[string]string{
		"scenes/alice/a/scene.json":            sceneJSON("A", true, "", "x", "y"),
		"scenes/alice/b/scene.json":            sceneJSON("B", false, "", "y"),
		"scenes/bob/c/scene.json":              sceneJSON("C", true, "", "z"),
		"collections/alice/models/m1.glb":      "",
		"collections/alice/models/sub/m2.gltf": "",
		"collections/alice/media/clip.mp4":     "",
	})

	first, err := f.svc.AllScenes(ctx)
	if err != nil {
		t.Fatalf("AllScenes() error = %v", err)
	}
	firstDigest, ok := f.svc.ScenesDigest()
	if !ok {
		t.Fatal("ScenesDigest() not available after a rebuild")
	}
	firstColl, err := f.svc.UserCollection(ctx, "alice")
	if err != nil {
		t.Fatalf("UserCollection() error = %v", err)
	}

	if err := f.svc.Refresh(ctx, maat.NamespaceScenes); err != nil {
		t.Fatalf("Refresh(scenes) error = %v", err)
	}
	if err := f.svc.Refresh(ctx, maat.CollectionNamespace("alice")); err != nil {
		t.Fatalf("Refresh(collection) error = %v", err)
	}

	second, err := f.svc.AllScenes(ctx)
	if err != nil {
		t.Fatalf("AllScenes() error = %v", err)
	}
	secondDigest, _ := f.svc.ScenesDigest()
	secondColl, err := f.svc.UserCollection(ctx, "alice")
	if err != nil {
		t.Fatalf("UserCollection() error = %v", err)
	}

	if firstDigest != secondDigest {
		t.Errorf("digest changed: %x → %x", firstDigest, secondDigest)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("scenes differ:\n%v\n%v", first, second)
	}
	if !reflect.DeepEqual(firstColl, secondColl) {
		t.Errorf("collections differ:\n%v\n%v", firstColl, secondColl)
	}
	if got := statusOf(t, f.svc, maat.NamespaceScenes).Rebuilds; got != 2 {
		t.Errorf("Rebuilds = %d, want 2", got)
	}
}

func TestService_StalenessWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write(t, map[string]string{"scenes/alice/s1/scene.json": sceneJSON("S1", true, "")})

	count := func() int {
		t.Helper()
		scenes, err := f.svc.AllScenes(ctx)
		if err != nil {
			t.Fatalf("AllScenes() error = %v", err)
		}
		return len(scenes)
	}

	if got := count(); got != 1 {
		t.Fatalf("first query = %d scenes, want 1", got)
	}
	if st := statusOf(t, f.svc, maat.NamespaceScenes); st.State != maat.StateFresh {
		t.Errorf("State = %v, want fresh", st.State)
	}

	f.write(t, map[string]string{"scenes/bob/s2/scene.json": sceneJSON("S2", true, "")})

	f.clock.Advance(testInterval - time.Second)
	if got := count(); got != 1 {
		t.Errorf("query inside window = %d scenes, want 1", got)
	}
	if got := f.fsm.GlobCalls(maat.SceneManifest); got != 1 {
		t.Errorf("scans inside window = %d, want 1", got)
	}

	f.clock.Advance(time.Second)
	if st := statusOf(t, f.svc, maat.NamespaceScenes); st.State != maat.StateStale {
		t.Errorf("State after window = %v, want stale", st.State)
	}
	if got := count(); got != 2 {
		t.Errorf("query after window = %d scenes, want 2", got)
	}
	if got := f.fsm.GlobCalls(maat.SceneManifest); got != 2 {
		t.Errorf("scans after window = %d, want 2", got)
	}
}

func TestService_FailureWithoutSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	testutil.RemovePath(t, f.dir, "scenes")

	scenes, err := f.svc.AllScenes(ctx)
	var se *maat.ScanError
	if !errors.As(err, &se) {
		t.Fatalf("AllScenes() error = %v, want *maat.ScanError", err)
	}
	if se.Namespace != maat.NamespaceScenes {
		t.Errorf("ScanError.Namespace = %q, want scenes", se.Namespace)
	}
	if scenes == nil || len(scenes) != 0 {
		t.Errorf("AllScenes() = %v, want empty non-nil slice", scenes)
	}
	if st := statusOf(t, f.svc, maat.NamespaceScenes); st.State != maat.StateStale {
		t.Errorf("State after failure = %v, want stale", st.State)
	}

	// The namespace retries on the next access without waiting for the window.
	f.write(t, map[string]string{"scenes/alice/s1/scene.json": sceneJSON("S1", true, "")})
	scenes, err = f.svc.AllScenes(ctx)
	if err != nil {
		t.Fatalf("AllScenes() after recovery error = %v", err)
	}
	if len(scenes) != 1 {
		t.Errorf("len(AllScenes()) = %d, want 1", len(scenes))
	}
}

func TestService_FailureServesPreviousSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write(t, map[string]string{"scenes/alice/s1/scene.json": sceneJSON("S1", true, "", "a")})

	if _, err := f.svc.AllScenes(ctx); err != nil {
		t.Fatalf("AllScenes() error = %v", err)
	}

	diskGone := errors.New("disk gone")
	f.fsm.FailGlobs(maat.SceneManifest, diskGone)
	f.clock.Advance(testInterval)

	scenes, err := f.svc.AllScenes(ctx)
	if err != nil {
		t.Fatalf("AllScenes() error = %v, want previous snapshot", err)
	}
	if len(scenes) != 1 || scenes[0].ID != "alice/s1" {
		t.Errorf("AllScenes() = %v, want [alice/s1]", sceneIDs(scenes))
	}

	err = f.svc.Refresh(ctx, maat.NamespaceScenes)
	if !maat.IsScanError(err) || !errors.Is(err, diskGone) {
		t.Errorf("Refresh() error = %v, want scan error wrapping %v", err, diskGone)
	}

	f.fsm.Heal()
	if err := f.svc.Refresh(ctx, maat.NamespaceScenes); err != nil {
		t.Errorf("Refresh() after heal error = %v", err)
	}
}

func TestService_AbandonedWaitDoesNotCancelRebuild(t *testing.T) {
	f := newFixture(t)
	f.write(t, map[string]string{"scenes/alice/s1/scene.json": sceneJSON("S1", true, "")})

	started, release := f.fsm.Block()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.svc.AllScenes(ctx)
		done <- err
	}()

	<-started
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("AllScenes() error = %v, want context.Canceled", err)
	}

	release()
	scenes, err := f.svc.AllScenes(context.Background())
	if err != nil {
		t.Fatalf("AllScenes() error = %v", err)
	}
	if len(scenes) != 1 {
		t.Errorf("len(AllScenes()) = %d, want 1", len(scenes))
	}
	if got := f.fsm.GlobCalls(maat.SceneManifest); got != 1 {
		t.Errorf("scene scans = %d, want 1", got)
	}
}

func TestService_Close(t *testing.T) {
	t.Run("queries fail after close", func(t *testing.T) {
		f := newFixture(t)
		if err := f.svc.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if _, err := f.svc.AllScenes(context.Background()); !errors.Is(err, maat.ErrClosed) {
			t.Errorf("AllScenes() error = %v, want ErrClosed", err)
		}
		if err := f.svc.Refresh(context.Background(), maat.NamespaceApps); !errors.Is(err, maat.ErrClosed) {
			t.Errorf("Refresh() error = %v, want ErrClosed", err)
		}
	})

	t.Run("waits for rebuilds in flight", func(t *testing.T) {
		f := newFixture(t)
		started, release := f.fsm.Block()
		go f.svc.AllScenes(context.Background())
		<-started

		closed := make(chan struct{})
		go func() {
			f.svc.Close()
			close(closed)
		}()

		select {
		case <-closed:
			t.Fatal("Close() returned while a rebuild was running")
		case <-time.After(50 * time.Millisecond):
		}

		release()
		select {
		case <-closed:
		case <-time.After(5 * time.Second):
			t.Fatal("Close() did not return after the rebuild finished")
		}
	})
}

func TestService_Refresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.svc.Refresh(ctx, maat.Namespace("bogus")); err == nil {
		t.Error("Refresh(bogus) expected error")
	}
	if err := f.svc.Refresh(ctx, maat.CollectionNamespace("../etc")); !errors.Is(err, maat.ErrInvalidOwner) {
		t.Errorf("Refresh(collection:../etc) error = %v, want ErrInvalidOwner", err)
	}
	for _, ns := range []maat.Namespace{maat.NamespaceScenes, maat.NamespaceApps, maat.NamespaceUsers} {
		if err := f.svc.Refresh(ctx, ns); err != nil {
			t.Errorf("Refresh(%s) error = %v", ns, err)
		}
	}
}

func TestService_RecordsRebuilds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write(t, map[string]string{"scenes/alice/s1/scene.json": sceneJSON("S1", true, "")})
	testutil.RemovePath(t, f.dir, "webapps")

	if _, err := f.svc.AllScenes(ctx); err != nil {
		t.Fatalf("AllScenes() error = %v", err)
	}
	if _, err := f.svc.Apps(ctx); !maat.IsScanError(err) {
		t.Fatalf("Apps() error = %v, want scan error", err)
	}

	// Reports are delivered after waiters are released; Close waits for them.
	f.svc.Close()

	recs, err := f.db.RecentRebuilds(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRebuilds() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len(RecentRebuilds()) = %d, want 2", len(recs))
	}

	byNS := make(map[maat.Namespace]maat.RebuildRecord)
	for _, r := range recs {
		if r.ID == "" {
			t.Errorf("record for %s has no ID", r.Namespace)
		}
		byNS[r.Namespace] = r
	}
	if r := byNS[maat.NamespaceScenes]; !r.Succeeded() || r.Entries != 1 {
		t.Errorf("scenes record = %+v, want success with 1 entry", r)
	}
	if r := byNS[maat.NamespaceApps]; r.Succeeded() {
		t.Errorf("apps record = %+v, want failure", r)
	}

	viaService, err := f.svc.RecentRebuilds(ctx, 1)
	if err != nil {
		t.Fatalf("Service.RecentRebuilds() error = %v", err)
	}
	if len(viaService) != 1 {
		t.Errorf("len(Service.RecentRebuilds(1)) = %d, want 1", len(viaService))
	}
}
