package cli_test

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vectral/vectral/cmd/vectrald/cli"
	"github.com/vectral/vectral/internal/persistence"
	"github.com/vectral/vectral/internal/search"
	"github.com/vectral/vectral/internal/vectordb"
	"github.com/vectral/vectral/pkg/fs"
)

func openTestDB(t *testing.T) *vectordb.DB {
	t.Helper()

	dir := t.TempDir()
	db, err := vectordb.Open(fs.NewReal(), vectordb.Config{
		Persistence: persistence.Config{
			SnapshotPath: filepath.Join(dir, "snapshot.json"),
			WALPath:      filepath.Join(dir, "wal.jsonl"),
			Sync:         persistence.SyncPolicy{OnWrite: true},
		},
		Resource:   vectordb.DefaultResourcePolicy(),
		Thresholds: search.DefaultThresholds(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func runCmd(t *testing.T, db *vectordb.DB, name string, args ...string) (string, int) {
	t.Helper()

	var out bytes.Buffer
	ioHandle := cli.NewIO(&out, &out)

	code := cli.Dispatch(context.Background(), ioHandle, db, name, args)
	return out.String(), code
}

func TestCLICreateUpsertGetSearch(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)

	out, code := runCmd(t, db, "create-collection", "demo", "--dimension", "3")
	require.Equal(t, 0, code)
	require.Contains(t, out, "created demo")

	out, code = runCmd(t, db, "upsert", "demo", "1", "--values", "[1,2,3]", "--payload", `{"k":"v"}`)
	require.Equal(t, 0, code)
	require.Contains(t, out, "created")

	out, code = runCmd(t, db, "get", "demo", "1")
	require.Equal(t, 0, code)
	require.Contains(t, out, `"id":1`)
	require.Contains(t, out, `"values":[1,2,3]`)

	out, code = runCmd(t, db, "search", "demo", "--values", "[1,2,3]", "--k", "1")
	require.Equal(t, 0, code)
	require.Contains(t, out, `"id":1`)
}

func TestCLISearchWithFilterExcludesNonMatching(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)

	_, code := runCmd(t, db, "create-collection", "demo", "--dimension", "2")
	require.Equal(t, 0, code)

	_, code = runCmd(t, db, "upsert", "demo", "1", "--values", "[0,0]", "--payload", `{"tag":"keep"}`)
	require.Equal(t, 0, code)

	_, code = runCmd(t, db, "upsert", "demo", "2", "--values", "[0,0]", "--payload", `{"tag":"drop"}`)
	require.Equal(t, 0, code)

	out, code := runCmd(t, db, "search", "demo", "--values", "[0,0]", "--k", "10",
		"--filter", `{"must":[{"type":"match","field":"tag","value":"keep"}]}`)
	require.Equal(t, 0, code)
	require.Contains(t, out, `"id":1`)
	require.NotContains(t, out, `"id":2`)
}

func TestCLIUnknownCommand(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)

	out, code := runCmd(t, db, "bogus")
	require.Equal(t, 1, code)
	require.True(t, strings.Contains(out, "unknown command"))
}

func TestCLIListPaginatesAscending(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)

	_, code := runCmd(t, db, "create-collection", "demo", "--dimension", "2")
	require.Equal(t, 0, code)

	for _, id := range []string{"1", "2", "3"} {
		_, code = runCmd(t, db, "upsert", "demo", id, "--values", "[0,0]")
		require.Equal(t, 0, code)
	}

	out, code := runCmd(t, db, "list", "demo", "--limit", "2")
	require.Equal(t, 0, code)
	require.Contains(t, out, "1\n2\n")
	require.Contains(t, out, "next_cursor: 2")
}

func TestCLIStatsReportsCollection(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)

	_, code := runCmd(t, db, "create-collection", "demo", "--dimension", "2")
	require.Equal(t, 0, code)

	out, code := runCmd(t, db, "stats")
	require.Equal(t, 0, code)
	require.Contains(t, out, `"Name": "demo"`)
}
