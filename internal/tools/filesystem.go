package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
)

// Filesystem limits.
const (
	fsMaxEntries   = 50
	fsMaxMatches   = 20
	fsMaxReadChars = 4000
	fsMaxReadBytes = 100 * 1024
)

var (
	fsLsRe   = regexp.MustCompile(`\[FS_LS:([^\]]*)\]`)
	fsReadRe = regexp.MustCompile(`\[FS_READ:([^\]]+)\]`)
	fsFindRe = regexp.MustCompile(`\[FS_FIND:([^\]]+)\]`)
	fsInfoRe = regexp.MustCompile(`\[FS_INFO:([^\]]+)\]`)
)

var errOutsideRoot = errors.New("path escapes the allowed root")

// FilesystemTool browses a directory tree read-only. Every path is
// confined to root.
type FilesystemTool struct {
	root   string
	logger *slog.Logger
}

// NewFilesystemTool creates the tool for root. It returns a nil Tool
// when root is empty, which [Registry.Register] ignores.
func NewFilesystemTool(root string, logger *slog.Logger) Tool {
	if root == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(root)
	if err == nil {
		root = abs
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	return &FilesystemTool{root: filepath.Clean(root), logger: logger}
}

func (t *FilesystemTool) Name() string { return "filesystem" }

func (t *FilesystemTool) Description() string {
	return "- FileSystem: When the user wants to browse, read, search, or inspect files or directories, use these tags:\n" +
		"  - [FS_LS:<path>] - List directory contents (e.g. [FS_LS:" + filepath.Join(t.root, "workspace") + "])\n" +
		"  - [FS_READ:<path>] - Read a text file\n" +
		"  - [FS_FIND:<pattern>] - Search files by glob pattern (e.g. [FS_FIND:*.pdf], [FS_FIND:config.yaml])\n" +
		"  - [FS_INFO:<path>] - Get file or directory metadata"
}

func (t *FilesystemTool) UsageRules() string {
	return fmt.Sprintf("- For filesystem, detect when the user asks about files or directories. "+
		"All paths must be inside %s; relative paths are relative to it. Never access paths outside %s.", t.root, t.root)
}

func (t *FilesystemTool) TryExecute(ctx context.Context, reply string, tc *Context) *Result {
	if m := match(fsLsRe, reply); m != nil {
		return Text(t.list(m[0]))
	}
	if m := match(fsReadRe, reply); m != nil {
		return Text(t.read(m[0]))
	}
	if m := match(fsFindRe, reply); m != nil {
		return Text(t.find(ctx, m[0]))
	}
	if m := match(fsInfoRe, reply); m != nil {
		return Text(t.info(m[0]))
	}
	return nil
}

// resolve maps p onto the filesystem, refusing anything that ends up
// outside root after cleaning and symlink resolution.
func (t *FilesystemTool) resolve(p string) (string, error) {
	var abs string
	switch {
	case p == "":
		abs = t.root
	case filepath.IsAbs(p):
		abs = filepath.Clean(p)
	default:
		abs = filepath.Join(t.root, p)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	rel, err := filepath.Rel(t.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errOutsideRoot
	}
	return abs, nil
}

func (t *FilesystemTool) denied() string {
	return fmt.Sprintf("Access denied: the allowed root is %s.", t.root)
}

func (t *FilesystemTool) list(p string) string {
	dir, err := t.resolve(p)
	if err != nil {
		return t.denied()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return "Permission denied."
		}
		return "Not a directory or does not exist."
	}
	if len(entries) == 0 {
		return dir + " is empty."
	}

	lines := []string{"Directory: " + dir, ""}
	for i, e := range entries {
		if i == fsMaxEntries {
			lines = append(lines, fmt.Sprintf("...and %d more", len(entries)-fsMaxEntries))
			break
		}
		lines = append(lines, kindTag(e.IsDir())+" "+e.Name())
	}
	return strings.Join(lines, "\n")
}

func (t *FilesystemTool) read(p string) string {
	path, err := t.resolve(p)
	if err != nil {
		return t.denied()
	}
	st, err := os.Stat(path)
	if err != nil || st.IsDir() {
		return "Not a file or does not exist."
	}
	if st.Size() > fsMaxReadBytes {
		return fmt.Sprintf("File too large (%s). Only files up to %s can be read.",
			humanize.IBytes(uint64(st.Size())), humanize.IBytes(fsMaxReadBytes))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "Read failed: " + err.Error()
	}
	text := strings.ToValidUTF8(string(data), "�")
	if utf8.RuneCountInString(text) > fsMaxReadChars {
		return string([]rune(text)[:fsMaxReadChars]) + "\n...(truncated)"
	}
	return text
}

func (t *FilesystemTool) find(ctx context.Context, pattern string) string {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return "Invalid search pattern: " + pattern
	}

	var matches []string
	truncated := false
	err := filepath.WalkDir(t.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if path == t.root {
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); ok {
			if len(matches) == fsMaxMatches {
				truncated = true
				return fs.SkipAll
			}
			matches = append(matches, kindTag(d.IsDir())+" "+path)
		}
		return nil
	})
	if err != nil {
		return "Search failed: " + err.Error()
	}
	if len(matches) == 0 {
		return pattern + ": no matches"
	}

	lines := append([]string{"Search: " + pattern, ""}, matches...)
	if truncated {
		lines = append(lines, "...and more")
	}
	return strings.Join(lines, "\n")
}

func (t *FilesystemTool) info(p string) string {
	path, err := t.resolve(p)
	if err != nil {
		return t.denied()
	}
	st, err := os.Stat(path)
	if err != nil {
		return "Path does not exist."
	}

	kind := "file"
	if st.IsDir() {
		kind = "directory"
	}
	lines := []string{
		"Type: " + kind,
		"Path: " + path,
		"Size: " + humanize.IBytes(uint64(st.Size())),
		fmt.Sprintf("Modified: %s (%s)", st.ModTime().Format("2006-01-02 15:04:05"), humanize.Time(st.ModTime())),
	}
	if st.IsDir() {
		if entries, err := os.ReadDir(path); err == nil {
			dirs, files := 0, 0
			for _, e := range entries {
				if e.IsDir() {
					dirs++
				} else {
					files++
				}
			}
			lines = append(lines, fmt.Sprintf("Contents: %d folders, %d files", dirs, files))
		}
	}
	return strings.Join(lines, "\n")
}

func kindTag(dir bool) string {
	if dir {
		return "[DIR]"
	}
	return "[FILE]"
}
