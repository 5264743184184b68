package maat_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"maat-go/internal/database"
	"maat-go/internal/fs"
	"maat-go/internal/maat"
	"maat-go/internal/model"
	"maat-go/internal/testutil"
)

const testInterval = 10 * time.Second

type fixture struct {
	dir   string
	fsm   *testutil.ScriptedFilesystemManager
	users *testutil.MemoryUserStore
	clock *testutil.StubClock
	db    *database.SQLiteDatabase
	svc   *maat.Service
}

// newFixture builds a Service over an empty data directory. Callers may
// adjust the options before the service is created.
func newFixture(t *testing.T, adjust ...func(*maat.Options)) *fixture {
	t.Helper()

	dir := testutil.DataDir(t)
	matcher, err := fs.NewExclusionMatcher(fs.DefaultExclusionRules())
	if err != nil {
		t.Fatalf("NewExclusionMatcher() error = %v", err)
	}

	opts := maat.DefaultOptions(dir)
	opts.Name = "test"
	opts.Interval = testInterval
	opts.Exclusions = matcher
	for _, fn := range adjust {
		fn(&opts)
	}

	f := &fixture{
		dir:   dir,
		fsm:   testutil.NewScriptedFilesystemManager(),
		users: testutil.NewMemoryUserStore(),
		clock: testutil.FixedClock(),
		db:    testutil.NewTestDatabase(t),
	}
	f.svc = maat.NewService(opts, f.fsm, f.users, f.db, nil, maat.NewNopLogger(), f.clock, testutil.NewStubIDGenerator())
	t.Cleanup(func() { f.svc.Close() })
	return f
}

// write creates files relative to the data directory.
func (f *fixture) write(t *testing.T, files map[string]string) {
	t.Helper()
	testutil.WriteTree(t, f.dir, files)
}

// sceneJSON renders a minimal scene manifest.
func sceneJSON(title string, public bool, created string, keywords ...string) string {
	var b strings.Builder
	b.WriteString("{")
	fmt.Fprintf(&b, "%q: %q", "title", title)
	if public {
		b.WriteString(`, "visibility": true`)
	}
	if created != "" {
		fmt.Fprintf(&b, `, "creationDate": %q`, created)
	}
	b.WriteString(`, "kwords": {`)
	for i, kw := range keywords {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q: 1", kw)
	}
	b.WriteString("}}")
	return b.String()
}

func sceneIDs(scenes []model.SceneEntry) []string {
	ids := make([]string, len(scenes))
	for i, s := range scenes {
		ids[i] = s.ID
	}
	return ids
}

// removeScene deletes a scene directory below the scenes root.
func removeScene(f *fixture, sid string) error {
	return os.RemoveAll(filepath.Join(f.dir, "scenes", filepath.FromSlash(sid)))
}
