package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/jrmorin/forgeup/internal/execstream"
	"github.com/jrmorin/forgeup/internal/logger"
	forgeerrors "github.com/jrmorin/forgeup/pkg/errors"
)

// Fetcher acquires source artifacts idempotently: anything already on disk
// is treated as done, so re-runs perform zero network operations.
type Fetcher struct {
	client *http.Client
	log    *logger.Logger
}

// New creates a Fetcher. A nil client falls back to http.DefaultClient.
func New(client *http.Client, log *logger.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client, log: log}
}

// Archive downloads url to dest unless dest already exists. The download
// lands in a temp file first so an interrupted fetch never leaves a partial
// archive behind to satisfy the next run's existence check.
func (f *Fetcher) Archive(ctx context.Context, url, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		f.log.Debugf("archive %s already present", dest)
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return forgeerrors.NewFetchError(url, dest, err)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return forgeerrors.NewFetchError(url, dest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return forgeerrors.NewFetchError(url, dest, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return forgeerrors.NewFetchError(url, dest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return forgeerrors.NewFetchError(url, dest, fmt.Errorf("unexpected status %s", resp.Status))
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".partial-*")
	if err != nil {
		return forgeerrors.NewFetchError(url, dest, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return forgeerrors.NewFetchError(url, dest, err)
	}
	if err := tmp.Close(); err != nil {
		return forgeerrors.NewFetchError(url, dest, err)
	}

	if err := os.Rename(tmpName, dest); err != nil {
		return forgeerrors.NewFetchError(url, dest, err)
	}

	f.log.Infof("downloaded %s", dest)
	return nil
}

// Extract unpacks an archive into destDir, stripping the top-level
// directory. Extraction is skipped when destDir already exists.
func (f *Fetcher) Extract(ctx context.Context, archive, destDir string) error {
	if _, err := os.Stat(destDir); err == nil {
		f.log.Debugf("extraction %s already present", destDir)
		return nil
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return forgeerrors.NewFetchError(archive, destDir, err)
	}

	cmd := exec.CommandContext(ctx, "tar", "-xf", archive, "-C", destDir, "--strip-components=1")
	if res, err := execstream.Run(cmd); err != nil {
		// Remove the empty directory so a later run retries the extraction.
		os.RemoveAll(destDir)
		if out := execstream.PrimaryOutput(res); out != "" {
			err = fmt.Errorf("%w: %s", err, out)
		}
		return forgeerrors.NewFetchError(archive, destDir, err)
	}

	return nil
}

// RepoSpec describes a repository acquisition.
type RepoSpec struct {
	URL        string
	Dest       string
	Branch     string
	Depth      int
	Refresh    bool
	ForceClean bool
}

// Repository clones spec.URL into spec.Dest if absent. An existing valid
// checkout counts as success; with Refresh it is updated in place instead of
// re-cloned. An existing directory that is not a valid checkout is an error:
// recovery is ambiguous and user data is never deleted silently. ForceClean
// makes the removal explicit and re-clones.
func (f *Fetcher) Repository(ctx context.Context, spec RepoSpec) error {
	info, err := os.Stat(spec.Dest)
	if errors.Is(err, os.ErrNotExist) {
		return f.clone(ctx, spec)
	}
	if err != nil {
		return forgeerrors.NewFetchError(spec.URL, spec.Dest, err)
	}
	if !info.IsDir() {
		return forgeerrors.NewFetchError(spec.URL, spec.Dest, fmt.Errorf("destination exists and is not a directory"))
	}

	repo, openErr := git.PlainOpen(spec.Dest)
	if openErr != nil {
		if !spec.ForceClean {
			return forgeerrors.NewFetchError(spec.URL, spec.Dest,
				fmt.Errorf("existing directory is not a valid checkout (re-run with --force-clean to replace it): %w", openErr))
		}
		f.log.Warnf("removing invalid checkout at %s", spec.Dest)
		if err := os.RemoveAll(spec.Dest); err != nil {
			return forgeerrors.NewFetchError(spec.URL, spec.Dest, err)
		}
		return f.clone(ctx, spec)
	}

	if !spec.Refresh {
		f.log.Debugf("checkout %s already present", spec.Dest)
		return nil
	}

	// A tag pin cannot move, so a checkout cloned from a tag ref is already
	// current and has no branch to pull.
	if spec.Branch != "" {
		if _, tagErr := repo.Reference(plumbing.NewTagReferenceName(spec.Branch), true); tagErr == nil {
			f.log.Debugf("checkout %s pinned to tag %s", spec.Dest, spec.Branch)
			return nil
		}
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return forgeerrors.NewFetchError(spec.URL, spec.Dest, err)
	}

	pullOpts := &git.PullOptions{RemoteName: "origin"}
	if spec.Branch != "" {
		pullOpts.ReferenceName = plumbing.NewBranchReferenceName(spec.Branch)
		pullOpts.SingleBranch = true
	}

	if err := worktree.PullContext(ctx, pullOpts); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return forgeerrors.NewFetchError(spec.URL, spec.Dest, err)
	}

	f.log.Infof("refreshed %s", spec.Dest)
	return nil
}

func (f *Fetcher) clone(ctx context.Context, spec RepoSpec) error {
	if err := os.MkdirAll(filepath.Dir(spec.Dest), 0o755); err != nil {
		return forgeerrors.NewFetchError(spec.URL, spec.Dest, err)
	}

	cloneOpts := &git.CloneOptions{URL: spec.URL}
	if spec.Depth > 0 {
		cloneOpts.Depth = spec.Depth
	}
	if spec.Branch != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(spec.Branch)
		cloneOpts.SingleBranch = true
	}

	_, err := git.PlainCloneContext(ctx, spec.Dest, false, cloneOpts)
	if err != nil && spec.Branch != "" {
		// Projects pin releases by tag as often as by branch.
		os.RemoveAll(spec.Dest)
		cloneOpts.ReferenceName = plumbing.NewTagReferenceName(spec.Branch)
		_, err = git.PlainCloneContext(ctx, spec.Dest, false, cloneOpts)
	}
	if err != nil {
		return forgeerrors.NewFetchError(spec.URL, spec.Dest, err)
	}

	f.log.Infof("cloned %s", spec.URL)
	return nil
}

// IsValidCheckout reports whether dest contains an openable repository.
func IsValidCheckout(dest string) bool {
	_, err := git.PlainOpen(dest)
	return err == nil
}
