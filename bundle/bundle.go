// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package bundle provides the script bundle and filesystem collaborators
// consumed by the native registry.
package bundle

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FS serves bundle contents from an [fs.FS], such as an embed.FS or
// [os.DirFS].
type FS struct {
	fsys fs.FS
}

// NewFS wraps fsys.
func NewFS(fsys fs.FS) *FS {
	if fsys == nil {
		panic("bundle: fsys cannot be nil")
	}
	return &FS{fsys: fsys}
}

// Dir serves bundle contents from a directory.
func Dir(dir string) *FS {
	return NewFS(os.DirFS(dir))
}

// Contents returns the text of the script at the bundle-relative path p.
// Leading slashes are ignored, and p is cleaned.
func (x *FS) Contents(p string) (string, bool) {
	p = path.Clean(strings.TrimLeft(p, "/"))
	if !fs.ValidPath(p) || p == "." {
		return "", false
	}
	b, err := fs.ReadFile(x.fsys, p)
	if err != nil {
		return "", false
	}
	return string(b), true
}

const compiledByPrefix = "// Compiled by ClojureScript "

// ClojureScriptVersion reports the compiler version recorded in the header
// of replete/bundle.js.
func (x *FS) ClojureScriptVersion() (string, bool) {
	s, ok := x.Contents("replete/bundle.js")
	if !ok {
		return "", false
	}
	s, ok = strings.CutPrefix(s, compiledByPrefix)
	if !ok {
		return "", false
	}
	if i := strings.IndexAny(s, " \r\n"); i != -1 {
		s = s[:i]
	}
	return s, s != ""
}

// Root confines logical paths to a directory. Paths are slash separated,
// leading slashes are ignored, and paths escaping the root don't resolve.
type Root struct {
	dir string
}

// NewRoot returns a Root for dir, which must exist.
func NewRoot(dir string) (*Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("bundle: root is not a directory: " + abs)
	}
	return &Root{dir: abs}, nil
}

// Dir returns the absolute root directory.
func (x *Root) Dir() string {
	return x.dir
}

// Resolve maps a logical path to an absolute path within the root.
func (x *Root) Resolve(p string) (string, bool) {
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return x.dir, true
	}
	local := filepath.FromSlash(p)
	if !filepath.IsLocal(local) {
		return "", false
	}
	return filepath.Join(x.dir, local), true
}
