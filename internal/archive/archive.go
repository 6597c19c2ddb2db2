// Package archive keeps a git history of accepted style documents, one
// repository per style id. Commits land on main; named versions are
// plain git tags.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/emuanalytics/editor/internal/style"
)

type Version struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Record commits the document to the style's repository, initialising
// the repository on first use. Recording an unchanged document is a
// no-op that returns the current head.
func (s *Service) Record(styleID string, doc *style.Style, author, message string) (Version, error) {
	lock := s.styleLock(styleID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(styleID)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return s.initRepo(path, doc, author)
	} else if err != nil {
		return Version{}, fmt.Errorf("stat repo path: %w", err)
	}

	repo, err := git.PlainOpen(path)
	if err != nil {
		return Version{}, fmt.Errorf("open repo: %w", err)
	}

	head, headDoc, err := headCommit(repo)
	if err != nil {
		return Version{}, err
	}
	if style.Equal(headDoc, doc) {
		return toVersion(head), nil
	}

	hash, err := s.commit(repo, doc, author, message)
	if err != nil {
		return Version{}, err
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Version{}, fmt.Errorf("read commit object: %w", err)
	}
	return toVersion(commitObj), nil
}

// History lists versions on main, newest first. A limit of zero or less
// means no limit.
func (s *Service) History(styleID string, limit int) ([]Version, error) {
	if limit < 0 {
		limit = 0
	}
	lock := s.styleLock(styleID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(styleID))
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Version, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toVersion(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// Tag names a version. An empty hash tags the current head; tagging the
// same name twice is a no-op.
func (s *Service) Tag(styleID, hash, name string) error {
	lock := s.styleLock(styleID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(styleID))
	if err != nil {
		return fmt.Errorf("open repo: %w", err)
	}

	if hash == "" {
		ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
		if err != nil {
			return fmt.Errorf("resolve main: %w", err)
		}
		hash = ref.Hash().String()
	}
	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return err
	}

	_, err = repo.CreateTag(name, resolvedHash, &git.CreateTagOptions{
		Tagger: &object.Signature{
			Name:  "Styled",
			Email: "styled@localhost",
			When:  time.Now(),
		},
		Message: name,
	})
	if err != nil && !errors.Is(err, git.ErrTagExists) {
		return fmt.Errorf("create tag: %w", err)
	}
	return nil
}

func (s *Service) repoPath(styleID string) string {
	return filepath.Join(s.baseDir, styleID)
}

func (s *Service) styleLock(styleID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[styleID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[styleID] = lock
	return lock
}

func (s *Service) initRepo(path string, doc *style.Style, author string) (Version, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return Version{}, fmt.Errorf("create repo dir: %w", err)
	}

	repo, err := git.PlainInit(path, false)
	if err != nil {
		return Version{}, fmt.Errorf("init repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return Version{}, fmt.Errorf("open worktree: %w", err)
	}
	if err := writeStyleFile(path, doc); err != nil {
		return Version{}, err
	}
	if _, err := worktree.Add("style.json"); err != nil {
		return Version{}, fmt.Errorf("git add initial style: %w", err)
	}
	hash, err := worktree.Commit("Import style baseline", &git.CommitOptions{
		Author: signature(author),
	})
	if err != nil {
		return Version{}, fmt.Errorf("commit initial style: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return Version{}, fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return Version{}, fmt.Errorf("set HEAD to main: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Version{}, fmt.Errorf("read commit object: %w", err)
	}
	return toVersion(commitObj), nil
}

func (s *Service) commit(repo *git.Repository, doc *style.Style, author, message string) (plumbing.Hash, error) {
	if err := checkoutMain(repo); err != nil {
		return plumbing.ZeroHash, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}

	if err := writeStyleFile(worktree.Filesystem.Root(), doc); err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := worktree.Add("style.json"); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git add style: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: signature(author),
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit style: %w", err)
	}
	return hash, nil
}

func checkoutMain(repo *git.Repository) error {
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	branchRef := plumbing.NewBranchReferenceName("main")
	if _, err := repo.Reference(branchRef, true); err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Create: true}); err != nil {
				return fmt.Errorf("create main checkout: %w", err)
			}
			return nil
		}
		return fmt.Errorf("resolve main: %w", err)
	}

	if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Force: true}); err != nil {
		return fmt.Errorf("checkout main: %w", err)
	}
	return nil
}

func headCommit(repo *git.Repository) (*object.Commit, *style.Style, error) {
	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve main: %w", err)
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, nil, fmt.Errorf("load head commit: %w", err)
	}
	doc, err := readStyleFromCommit(commitObj)
	if err != nil {
		return nil, nil, err
	}
	return commitObj, doc, nil
}

func readStyleFromCommit(commitObj *object.Commit) (*style.Style, error) {
	file, err := commitObj.File("style.json")
	if err != nil {
		return nil, fmt.Errorf("load style.json from commit: %w", err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open style reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read style bytes: %w", err)
	}
	return style.Parse(raw)
}

func writeStyleFile(dir string, doc *style.Style) error {
	raw, err := doc.Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "style.json"), raw, 0o644); err != nil {
		return fmt.Errorf("write style.json: %w", err)
	}
	return nil
}

func signature(author string) *object.Signature {
	return &object.Signature{
		Name:  author,
		Email: fmt.Sprintf("%s@styled.local", sanitizeEmail(author)),
		When:  time.Now(),
	}
}

func toVersion(commitObj *object.Commit) Version {
	return Version{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	cleaned := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			cleaned = append(cleaned, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			cleaned = append(cleaned, '.')
		}
	}
	if len(cleaned) == 0 {
		return "editor"
	}
	return string(cleaned)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
