package tools

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Workspace confines fs.* tools to a root directory plus configured extras.
type Workspace struct {
	root  string
	read  []string
	write []string
}

// NewWorkspace creates a workspace rooted at root (the working directory when empty).
func NewWorkspace(root string, readDirs, writeDirs []string) (*Workspace, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		root = wd
	}
	w := &Workspace{}
	var err error
	if w.root, err = canonicalDir(root); err != nil {
		return nil, err
	}
	for _, d := range readDirs {
		if c, err := canonicalDir(d); err == nil {
			w.read = append(w.read, c)
		}
	}
	for _, d := range writeDirs {
		if c, err := canonicalDir(d); err == nil {
			w.write = append(w.write, c)
		}
	}
	return w, nil
}

// Root returns the canonical workspace root.
func (w *Workspace) Root() string {
	return w.root
}

// Resolve maps a tool-supplied path to an absolute path the tool may use.
// Relative paths are taken from the workspace root.
func (w *Workspace) Resolve(p string, write bool) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", NewToolError(ErrInvalidParams, "path is required")
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(w.root, p)
	}
	p = filepath.Clean(p)

	allowed := append([]string{w.root}, w.write...)
	if !write {
		allowed = append(allowed, w.read...)
	}
	if !withinAny(allowed, p) {
		return "", NewToolErrorf(ErrPathNotInWorkspace, "%s is outside the workspace", p)
	}
	real, err := evalExisting(p)
	if err != nil {
		return "", NewToolErrorf(ErrExecutionFailed, "cannot resolve path: %v", err)
	}
	if !withinAny(allowed, real) {
		return "", NewToolErrorf(ErrSymlinkEscape, "%s resolves outside the workspace", p)
	}
	return real, nil
}

// Rel returns p relative to the root when it lies inside it.
func (w *Workspace) Rel(p string) string {
	if rel, err := filepath.Rel(w.root, p); err == nil && within(w.root, p) {
		return filepath.ToSlash(rel)
	}
	return p
}

func canonicalDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	return evalExisting(abs)
}

// evalExisting resolves symlinks in the longest existing prefix of p and
// re-attaches the missing remainder.
func evalExisting(p string) (string, error) {
	var rest []string
	cur := p
	for {
		real, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(append([]string{real}, rest...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p, nil
		}
		rest = append([]string{filepath.Base(cur)}, rest...)
		cur = parent
	}
}

func within(base, p string) bool {
	rel, err := filepath.Rel(base, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func withinAny(bases []string, p string) bool {
	for _, b := range bases {
		if within(b, p) {
			return true
		}
	}
	return false
}
