package fetch

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	forgeerrors "github.com/jrmorin/forgeup/pkg/errors"
)

func newTestFetcher(client *http.Client) *Fetcher {
	return New(client, nil)
}

func TestArchive_ExistingFileSkipsNetwork(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte("tarball"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "src.tar.gz")
	require.NoError(t, os.WriteFile(dest, []byte("cached"), 0o644))

	f := newTestFetcher(server.Client())
	require.NoError(t, f.Archive(context.Background(), server.URL, dest))
	require.Zero(t, requests.Load())

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "cached", string(data))
}

func TestArchive_DownloadsWhenAbsent(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tarball-bytes"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "nested", "src.tar.gz")

	f := newTestFetcher(server.Client())
	require.NoError(t, f.Archive(context.Background(), server.URL, dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "tarball-bytes", string(data))

	// No partial files left behind.
	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestArchive_HTTPErrorIsFetchError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "src.tar.gz")

	f := newTestFetcher(server.Client())
	err := f.Archive(context.Background(), server.URL, dest)

	var fetchErr *forgeerrors.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.NoFileExists(t, dest)
}

// newFixtureRepo creates a local repository with one commit and returns its
// path, usable as a file-based clone URL.
func newFixtureRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("fixture\n"), 0o644))

	worktree, err := repo.Worktree()
	require.NoError(t, err)
	_, err = worktree.Add("README")
	require.NoError(t, err)

	_, err = worktree.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "fixture", Email: "fixture@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	return dir
}

func TestRepository_ClonesWhenAbsent(t *testing.T) {
	t.Parallel()

	origin := newFixtureRepo(t)
	dest := filepath.Join(t.TempDir(), "checkout")

	f := newTestFetcher(nil)
	err := f.Repository(context.Background(), RepoSpec{URL: origin, Dest: dest})
	require.NoError(t, err)
	require.True(t, IsValidCheckout(dest))
	require.FileExists(t, filepath.Join(dest, "README"))
}

func TestRepository_ExistingCheckoutWithoutRefreshIsImmediateSuccess(t *testing.T) {
	t.Parallel()

	origin := newFixtureRepo(t)
	dest := filepath.Join(t.TempDir(), "checkout")

	f := newTestFetcher(nil)
	require.NoError(t, f.Repository(context.Background(), RepoSpec{URL: origin, Dest: dest}))

	// The URL is unreachable; success proves zero network operations.
	err := f.Repository(context.Background(), RepoSpec{URL: "https://unreachable.invalid/repo.git", Dest: dest})
	require.NoError(t, err)
}

func newTaggedFixtureRepo(t *testing.T, tag string) string {
	t.Helper()

	dir := newFixtureRepo(t)
	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)

	head, err := repo.Head()
	require.NoError(t, err)
	_, err = repo.CreateTag(tag, head.Hash(), nil)
	require.NoError(t, err)

	return dir
}

func TestRepository_ClonesTagPin(t *testing.T) {
	t.Parallel()

	origin := newTaggedFixtureRepo(t, "1.74.1")
	dest := filepath.Join(t.TempDir(), "checkout")

	f := newTestFetcher(nil)
	err := f.Repository(context.Background(), RepoSpec{URL: origin, Dest: dest, Branch: "1.74.1"})
	require.NoError(t, err)
	require.True(t, IsValidCheckout(dest))
}

func TestRepository_TagPinRefreshIsNoOp(t *testing.T) {
	t.Parallel()

	origin := newTaggedFixtureRepo(t, "3.05.01")
	dest := filepath.Join(t.TempDir(), "checkout")

	f := newTestFetcher(nil)
	spec := RepoSpec{URL: origin, Dest: dest, Branch: "3.05.01"}
	require.NoError(t, f.Repository(context.Background(), spec))

	// Tags are immutable; refresh must not attempt a branch pull.
	spec.Refresh = true
	require.NoError(t, f.Repository(context.Background(), spec))
}

func TestRepository_InvalidCheckoutRequiresForceClean(t *testing.T) {
	t.Parallel()

	origin := newFixtureRepo(t)
	dest := filepath.Join(t.TempDir(), "checkout")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "leftover.txt"), []byte("junk"), 0o644))

	f := newTestFetcher(nil)

	err := f.Repository(context.Background(), RepoSpec{URL: origin, Dest: dest})
	var fetchErr *forgeerrors.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Contains(t, err.Error(), "--force-clean")
	// User data untouched.
	require.FileExists(t, filepath.Join(dest, "leftover.txt"))

	require.NoError(t, f.Repository(context.Background(), RepoSpec{URL: origin, Dest: dest, ForceClean: true}))
	require.True(t, IsValidCheckout(dest))
	require.NoFileExists(t, filepath.Join(dest, "leftover.txt"))
}

func writeTarball(t *testing.T, path string) {
	t.Helper()

	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()

	gz := gzip.NewWriter(file)
	tw := tar.NewWriter(gz)

	content := []byte("int main(void) { return 0; }\n")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "project-1.0/main.c", Mode: 0o644, Size: int64(len(content))}))
	_, err = tw.Write(content)
	require.NoError(t, err)

	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
}

func TestExtract_UnpacksAndStripsTopLevel(t *testing.T) {
	t.Parallel()

	if _, err := exec.LookPath("tar"); err != nil {
		t.Skip("tar not available")
	}

	dir := t.TempDir()
	archive := filepath.Join(dir, "project.tar.gz")
	writeTarball(t, archive)

	dest := filepath.Join(dir, "src")
	f := newTestFetcher(nil)
	require.NoError(t, f.Extract(context.Background(), archive, dest))
	require.FileExists(t, filepath.Join(dest, "main.c"))

	// Second call is a no-op.
	require.NoError(t, f.Extract(context.Background(), archive, dest))
}

func TestExtract_FailureCleansDestination(t *testing.T) {
	t.Parallel()

	if _, err := exec.LookPath("tar"); err != nil {
		t.Skip("tar not available")
	}

	dir := t.TempDir()
	archive := filepath.Join(dir, "broken.tar.gz")
	require.NoError(t, os.WriteFile(archive, []byte("not a tarball"), 0o644))

	dest := filepath.Join(dir, "src")
	f := newTestFetcher(nil)
	err := f.Extract(context.Background(), archive, dest)

	var fetchErr *forgeerrors.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.NoDirExists(t, dest)
}
