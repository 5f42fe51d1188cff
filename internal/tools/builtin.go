// ABOUTME: Builtin cat and tree tools confined to a sandbox root directory
// ABOUTME: tree renders a box-drawing directory listing with excluded names skipped

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ErrOutsideRoot is returned when a tool path escapes the sandbox root.
var ErrOutsideRoot = errors.New("path resolves outside the tool root")

// CatArgs are the arguments of the cat tool.
type CatArgs struct {
	FilePath string `json:"filePath" jsonschema_description:"Path of the file to read, relative to the workspace root."`
}

// TreeArgs are the arguments of the tree tool.
type TreeArgs struct {
	Directory string   `json:"directory" jsonschema_description:"Directory to list, relative to the workspace root."`
	Excludes  []string `json:"excludes,omitempty" jsonschema_description:"File or directory names to skip."`
}

// Sandbox confines builtin tools to a root directory.
type Sandbox struct {
	root     string
	excludes []string
}

// NewSandbox resolves root to an absolute path. Empty root means the working directory.
// excludes are always skipped by tree in addition to per-call excludes.
func NewSandbox(root string, excludes []string) (*Sandbox, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving working directory: %w", err)
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving tool root: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return &Sandbox{root: abs, excludes: excludes}, nil
}

// Root returns the absolute sandbox root.
func (s *Sandbox) Root() string { return s.root }

// Resolve maps rel onto an absolute path inside the root.
func (s *Sandbox) Resolve(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, rel)
	}
	candidate := filepath.Join(s.root, filepath.Clean(rel))
	if resolved, err := filepath.EvalSymlinks(candidate); err == nil {
		candidate = resolved
	}
	r, err := filepath.Rel(s.root, candidate)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, rel)
	}
	return candidate, nil
}

// Builtins returns the cat and tree tools bound to this sandbox.
func (s *Sandbox) Builtins() []Tool {
	return []Tool{
		{
			Name:        "cat",
			Description: "Read the full contents of a text file.",
			Parameters:  SchemaFor[CatArgs](),
			Handler:     s.cat,
		},
		{
			Name:        "tree",
			Description: "Show the directory tree under a path.",
			Parameters:  SchemaFor[TreeArgs](),
			Handler:     s.tree,
		},
	}
}

func decodeArgs(args map[string]any, dst any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

func (s *Sandbox) cat(_ context.Context, args map[string]any) (any, error) {
	var in CatArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if in.FilePath == "" {
		return nil, fmt.Errorf("%w: filePath is required", ErrInvalidArguments)
	}
	path, err := s.Resolve(in.FilePath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return string(data), nil
}

func (s *Sandbox) tree(_ context.Context, args map[string]any) (any, error) {
	var in TreeArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if in.Directory == "" {
		in.Directory = "."
	}
	dir, err := s.Resolve(in.Directory)
	if err != nil {
		return nil, err
	}
	excludes := append(slices.Clone(s.excludes), in.Excludes...)

	var b strings.Builder
	if err := renderTree(&b, dir, "", excludes); err != nil {
		return nil, err
	}
	return strings.TrimRight(b.String(), " \t\r\n"), nil
}

// renderTree writes one line per entry; directories get a trailing slash and
// their children are indented beneath them.
func renderTree(b *strings.Builder, dir, indent string, excludes []string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading directory: %w", err)
	}
	entries = slices.DeleteFunc(entries, func(e os.DirEntry) bool {
		return slices.Contains(excludes, e.Name())
	})

	for i, e := range entries {
		last := i == len(entries)-1
		branch, nextIndent := "├── ", indent+"|   "
		if last {
			branch, nextIndent = "└── ", indent+"    "
		}

		if e.IsDir() {
			fmt.Fprintf(b, "%s%s%s/\n", indent, branch, e.Name())
			if err := renderTree(b, filepath.Join(dir, e.Name()), nextIndent, excludes); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintf(b, "%s%s%s\n", indent, branch, e.Name())
	}
	return nil
}
