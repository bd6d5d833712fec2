package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/google/uuid"
)

// Git store layout constants. The git metadata lives in a hidden directory
// beside the worktree so the data dir stays browsable.
const (
	gitDirName      = ".store"
	gitSubjectsDir  = "subjects"
	gitBranch       = "main"
	gitCommitAuthor = "memcore"
	gitCommitEmail  = "memcore@local"
	gitInitMarker   = ".init"
)

// GitStore is a SubjectStore that keeps each subject as a JSON file in a
// git worktree and commits every mutation, giving full history for free.
// It trades write throughput for auditability; SQLiteStore remains the
// default backend.
type GitStore struct {
	mu       sync.Mutex
	repo     *git.Repository
	worktree *git.Worktree
	root     string
	closed   bool
}

// Verify interface implementation at compile time
var _ SubjectStore = (*GitStore)(nil)

// CommitInfo describes one history entry of a GitStore.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

// NewGitStore opens the subject repository at root, initializing it on
// first use (git metadata under root/.store, subject files under
// root/subjects).
func NewGitStore(root string) (*GitStore, error) {
	if err := os.MkdirAll(filepath.Join(root, gitSubjectsDir), 0755); err != nil {
		return nil, fmt.Errorf("create subjects directory: %w", err)
	}

	gitPath := filepath.Join(root, gitDirName)
	initialize := false
	if _, err := os.Stat(gitPath); os.IsNotExist(err) {
		initialize = true
	}

	fs := osfs.New(gitPath)
	storage := filesystem.NewStorage(fs, cache.NewObjectLRUDefault())
	wt := osfs.New(root)

	var (
		repo *git.Repository
		err  error
	)
	if initialize {
		repo, err = initGitRepo(storage, wt, root)
	} else {
		repo, err = git.Open(storage, wt)
		if err != nil {
			err = fmt.Errorf("open repository: %w", err)
		}
	}
	if err != nil {
		return nil, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("get worktree: %w", err)
	}

	return &GitStore{
		repo:     repo,
		worktree: worktree,
		root:     root,
	}, nil
}

// initGitRepo initializes the repository and creates the first commit, so
// HEAD exists before any subject is written.
func initGitRepo(storage *filesystem.Storage, wt billy.Filesystem, root string) (*git.Repository, error) {
	repo, err := git.Init(storage, wt)
	if err != nil {
		return nil, fmt.Errorf("init repository: %w", err)
	}

	cfg, err := repo.Config()
	if err != nil {
		return nil, fmt.Errorf("get config: %w", err)
	}
	cfg.Init.DefaultBranch = gitBranch
	if err := repo.SetConfig(cfg); err != nil {
		return nil, fmt.Errorf("set config: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("get worktree: %w", err)
	}

	markerPath := filepath.Join(root, gitInitMarker)
	if err := os.WriteFile(markerPath, []byte("memcore subject store\n"), 0644); err != nil {
		return nil, fmt.Errorf("write init marker: %w", err)
	}
	if _, err := worktree.Add(gitInitMarker); err != nil {
		return nil, fmt.Errorf("stage init marker: %w", err)
	}
	if _, err := worktree.Commit("init: initialize subject store", commitOptions()); err != nil {
		return nil, fmt.Errorf("initial commit: %w", err)
	}

	return repo, nil
}

func commitOptions() *git.CommitOptions {
	return &git.CommitOptions{
		Author: &object.Signature{
			Name:  gitCommitAuthor,
			Email: gitCommitEmail,
			When:  time.Now(),
		},
	}
}

// subjectRelPath is the worktree-relative file path for a subject.
func subjectRelPath(id string) string {
	return gitSubjectsDir + "/" + id + ".json"
}

func (g *GitStore) subjectAbsPath(id string) string {
	return filepath.Join(g.root, gitSubjectsDir, id+".json")
}

// List returns the ids of all stored subjects, in directory order.
func (g *GitStore) List(ctx context.Context) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil, ErrClosed
	}

	entries, err := os.ReadDir(filepath.Join(g.root, gitSubjectsDir))
	if err != nil {
		return nil, fmt.Errorf("read subjects directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

// Get returns the subject under id, or ErrNotFound.
func (g *GitStore) Get(ctx context.Context, id string) (*Subject, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil, ErrClosed
	}
	return g.readSubject(id)
}

func (g *GitStore) readSubject(id string) (*Subject, error) {
	data, err := os.ReadFile(g.subjectAbsPath(id))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read subject file: %w", err)
	}

	var subject Subject
	if err := json.Unmarshal(data, &subject); err != nil {
		return nil, fmt.Errorf("decode subject %s: %w", id, err)
	}
	return &subject, nil
}

// writeAndCommit persists the subject file, stages it, and commits.
func (g *GitStore) writeAndCommit(subject *Subject, message string) error {
	data, err := json.MarshalIndent(subject, "", "  ")
	if err != nil {
		return fmt.Errorf("encode subject: %w", err)
	}
	if err := os.WriteFile(g.subjectAbsPath(subject.ID), append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write subject file: %w", err)
	}
	if _, err := g.worktree.Add(subjectRelPath(subject.ID)); err != nil {
		return fmt.Errorf("stage subject file: %w", err)
	}
	if _, err := g.worktree.Commit(message, commitOptions()); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Create stores a new subject under a fresh uuid and commits it.
func (g *GitStore) Create(ctx context.Context, fields SubjectFields) (*Subject, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil, ErrClosed
	}

	fields = fields.sanitize()
	now := time.Now().UTC()
	subject := &Subject{
		ID:          uuid.NewString(),
		Label:       fields.Label,
		Description: fields.Description,
		Keywords:    fields.Keywords,
		Metadata:    fields.Metadata,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	message := fmt.Sprintf("subjects: create %s (%s)", subject.Label, subject.ID)
	if err := g.writeAndCommit(subject, message); err != nil {
		return nil, err
	}
	return subject.Clone(), nil
}

// Update replaces the mutable fields of an existing subject, bumping its
// version, and commits the change.
func (g *GitStore) Update(ctx context.Context, id string, fields SubjectFields) (*Subject, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil, ErrClosed
	}

	existing, err := g.readSubject(id)
	if err != nil {
		return nil, err
	}

	fields = fields.sanitize()
	updated := &Subject{
		ID:          existing.ID,
		Label:       fields.Label,
		Description: fields.Description,
		Keywords:    fields.Keywords,
		Metadata:    fields.Metadata,
		Version:     existing.Version + 1,
		CreatedAt:   existing.CreatedAt,
		UpdatedAt:   time.Now().UTC(),
	}

	message := fmt.Sprintf("subjects: update %s (v%d)", updated.Label, updated.Version)
	if err := g.writeAndCommit(updated, message); err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

// Delete removes the subject file and commits the removal. Reports false
// for unknown ids.
func (g *GitStore) Delete(ctx context.Context, id string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return false, ErrClosed
	}

	if _, err := os.Stat(g.subjectAbsPath(id)); os.IsNotExist(err) {
		return false, nil
	}

	if _, err := g.worktree.Remove(subjectRelPath(id)); err != nil {
		return false, fmt.Errorf("remove subject file: %w", err)
	}
	message := fmt.Sprintf("subjects: delete %s", id)
	if _, err := g.worktree.Commit(message, commitOptions()); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// History returns the most recent commits, newest first. limit <= 0 returns
// the full log.
func (g *GitStore) History(ctx context.Context, limit int) ([]CommitInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil, ErrClosed
	}

	iter, err := g.repo.Log(&git.LogOptions{})
	if err != nil {
		return nil, fmt.Errorf("get log: %w", err)
	}
	defer iter.Close()

	var commits []CommitInfo
	err = iter.ForEach(func(c *object.Commit) error {
		if limit > 0 && len(commits) >= limit {
			return io.EOF
		}
		commits = append(commits, CommitInfo{
			Hash:      c.Hash.String(),
			Message:   strings.TrimSpace(c.Message),
			Author:    c.Author.Name,
			Timestamp: c.Author.When,
		})
		return nil
	})
	if err != nil && err != io.EOF {
		return nil, err
	}
	return commits, nil
}

// Close marks the store closed; go-git holds no resources needing release.
func (g *GitStore) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}
