// Package vfs presents one active filesystem — whichever the boot-time
// detector selected — behind a single uniform file/directory surface,
// the way the syscall dispatcher wants one call site regardless of which
// on-disk format is mounted (spec.md §3/§4.12).
package vfs

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/xwings/elinOS/internal/ext2"
	"github.com/xwings/elinOS/internal/fat32"
)

// Kind identifies which backing driver is mounted.
type Kind int

const (
	KindFAT32 Kind = iota
	KindExt2
)

var (
	ErrNotFound     = errors.New("vfs: no such file or directory")
	ErrNotDirectory = errors.New("vfs: not a directory")
	ErrIsDirectory  = errors.New("vfs: is a directory")
)

// DirEntry is one uniform listing result, regardless of backing FS.
type DirEntry struct {
	Name  string
	IsDir bool
	Size  uint32
}

// FS is the uniform facade over whichever driver Mount selected.
type FS struct {
	kind Kind
	fat  *fat32.FS
	ext  *ext2.FS

	cwd []string // path components of the current working directory, "/" == empty slice
}

// MountFAT32 wraps an already-mounted FAT32 driver.
func MountFAT32(fs *fat32.FS) *FS {
	return &FS{kind: KindFAT32, fat: fs}
}

// MountExt2 wraps an already-mounted ext2 driver.
func MountExt2(fs *ext2.FS) *FS {
	return &FS{kind: KindExt2, ext: fs}
}

// Kind reports which backing driver this facade wraps.
func (v *FS) Kind() Kind { return v.kind }

// Info is the filesystem-agnostic summary SPEC_FULL.md §5 asks for,
// generalizing C12's per-driver "get_info" into one shape shared by both
// backing drivers and surfaced through SYS_FS_INFO.
type Info struct {
	Kind           Kind
	TotalSectors   uint32
	BytesPerSector uint16
	FreeBytes      uint64
}

// Info reports headline geometry for whichever driver is mounted, and free
// space for ext2. On a FAT32 mount free clusters are not counted and
// FreeBytes is always 0.
func (v *FS) Info() Info {
	if v.kind == KindFAT32 {
		_, totalSectors, bps := v.fat.GetInfo()
		return Info{Kind: KindFAT32, TotalSectors: totalSectors, BytesPerSector: bps}
	}
	totalBlocks, blockSize, freeBlocks := v.ext.GetInfo()
	sectorsPerBlock := blockSize / 512
	return Info{
		Kind:           KindExt2,
		TotalSectors:   totalBlocks * sectorsPerBlock,
		BytesPerSector: 512,
		FreeBytes:      uint64(freeBlocks) * uint64(blockSize),
	}
}

// CheckIssue is one structural problem Check found. Severity is always
// "warning": Check never repairs anything, it only reports.
type CheckIssue struct {
	Severity string
	Message  string
}

// Check runs a non-repairing, read-only consistency pass over the mounted
// filesystem's metadata (SPEC_FULL.md §5: "fsck-style consistency check").
func (v *FS) Check() []CheckIssue {
	var raw []string
	if v.kind == KindFAT32 {
		raw = v.fat.Check()
	} else {
		raw = v.ext.Check()
	}
	issues := make([]CheckIssue, 0, len(raw))
	for _, msg := range raw {
		issues = append(issues, CheckIssue{Severity: "warning", Message: msg})
	}
	return issues
}

// Getwd returns the current working directory as an absolute UNIX-style
// path.
func (v *FS) Getwd() string {
	if len(v.cwd) == 0 {
		return "/"
	}
	return "/" + strings.Join(v.cwd, "/")
}

// splitPath breaks an absolute or relative path into components, applying
// "." and ".." resolution against the facade's current working directory
// (spec.md §4.12: "Path resolution is UNIX-like with '.' and '..'").
func (v *FS) splitPath(path string) []string {
	var base []string
	if strings.HasPrefix(path, "/") {
		base = nil
	} else {
		base = append(base, v.cwd...)
	}
	for _, part := range strings.Split(path, "/") {
		switch part {
		case "", ".":
			// no-op
		case "..":
			if len(base) > 0 {
				base = base[:len(base)-1]
			}
		default:
			base = append(base, part)
		}
	}
	return base
}

// normalizeName applies the backing driver's filename normalization
// (spec.md §4.12: "FAT32 uppercases; ext2 preserves").
func (v *FS) normalizeName(name string) string {
	if v.kind == KindFAT32 {
		return strings.ToUpper(name)
	}
	return name
}

// Chdir updates the current working directory cursor after confirming the
// target path resolves to a directory.
func (v *FS) Chdir(path string) error {
	components := v.splitPath(path)
	if v.kind == KindExt2 {
		if _, err := v.resolveExt2Dir(components); err != nil {
			return err
		}
	}
	// FAT32 in this driver only supports a flat root directory, so any
	// resolved path other than "/" itself is rejected.
	if v.kind == KindFAT32 && len(components) != 0 {
		return ErrNotDirectory
	}
	v.cwd = components
	return nil
}

// List returns the directory entries at path.
func (v *FS) List(path string) ([]DirEntry, error) {
	components := v.splitPath(path)

	if v.kind == KindFAT32 {
		if len(components) != 0 {
			return nil, ErrNotFound
		}
		entries, err := v.fat.ListRoot()
		if err != nil {
			return nil, err
		}
		out := make([]DirEntry, 0, len(entries))
		for _, e := range entries {
			out = append(out, DirEntry{Name: e.Name, IsDir: e.IsDir, Size: e.Size})
		}
		return out, nil
	}

	dirIno, err := v.resolveExt2Dir(components)
	if err != nil {
		return nil, err
	}
	entries, err := v.ext.ListDir(dirIno)
	if err != nil {
		return nil, err
	}
	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		out = append(out, DirEntry{Name: e.Name, IsDir: e.IsDir})
	}
	return out, nil
}

// ReadFile returns the full contents of the file at path.
func (v *FS) ReadFile(path string) ([]byte, error) {
	components := v.splitPath(path)
	if len(components) == 0 {
		return nil, ErrIsDirectory
	}
	dir, name := components[:len(components)-1], components[len(components)-1]

	if v.kind == KindFAT32 {
		if len(dir) != 0 {
			return nil, ErrNotFound
		}
		data, err := v.fat.ReadFile(v.normalizeName(name))
		if errors.Is(err, fat32.ErrFileNotFound) {
			return nil, ErrNotFound
		}
		return data, err
	}

	dirIno, err := v.resolveExt2Dir(dir)
	if err != nil {
		return nil, err
	}
	entry, found, err := v.ext.Lookup(dirIno, name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	if entry.IsDir {
		return nil, ErrIsDirectory
	}
	return v.ext.ReadFile(entry.Inode)
}

// WriteFile creates or replaces the file at path with data.
func (v *FS) WriteFile(path string, data []byte) error {
	components := v.splitPath(path)
	if len(components) == 0 {
		return ErrIsDirectory
	}
	dir, name := components[:len(components)-1], components[len(components)-1]

	if v.kind == KindFAT32 {
		if len(dir) != 0 {
			return ErrNotFound
		}
		return v.fat.Write(v.normalizeName(name), data)
	}

	dirIno, err := v.resolveExt2Dir(dir)
	if err != nil {
		return err
	}
	entry, found, err := v.ext.Lookup(dirIno, name)
	if err != nil {
		return err
	}
	var ino uint32
	if found {
		if entry.IsDir {
			return ErrIsDirectory
		}
		ino = entry.Inode
	} else {
		ino, err = v.ext.CreateFile(dirIno, name)
		if err != nil {
			return err
		}
	}
	return v.ext.WriteFile(ino, data)
}

// Mkdir creates a new directory at path. FAT32 volumes in this driver only
// support a flat root, so this always fails with ErrNotDirectory there.
func (v *FS) Mkdir(path string) error {
	if v.kind == KindFAT32 {
		return ErrNotDirectory
	}
	components := v.splitPath(path)
	if len(components) == 0 {
		return ErrIsDirectory
	}
	dir, name := components[:len(components)-1], components[len(components)-1]
	dirIno, err := v.resolveExt2Dir(dir)
	if err != nil {
		return err
	}
	_, err = v.ext.Mkdir(dirIno, name)
	return err
}

// Rmdir removes an empty directory at path.
func (v *FS) Rmdir(path string) error {
	if v.kind == KindFAT32 {
		return ErrNotDirectory
	}
	components := v.splitPath(path)
	if len(components) == 0 {
		return ErrIsDirectory
	}
	dir, name := components[:len(components)-1], components[len(components)-1]
	dirIno, err := v.resolveExt2Dir(dir)
	if err != nil {
		return err
	}
	err = v.ext.Rmdir(dirIno, name)
	if errors.Is(err, ext2.ErrFileNotFound) {
		return ErrNotFound
	}
	return err
}

// Unlink removes the file at path.
func (v *FS) Unlink(path string) error {
	components := v.splitPath(path)
	if len(components) == 0 {
		return ErrIsDirectory
	}
	dir, name := components[:len(components)-1], components[len(components)-1]

	if v.kind == KindFAT32 {
		if len(dir) != 0 {
			return ErrNotFound
		}
		err := v.fat.Unlink(v.normalizeName(name))
		if errors.Is(err, fat32.ErrFileNotFound) {
			return ErrNotFound
		}
		return err
	}

	dirIno, err := v.resolveExt2Dir(dir)
	if err != nil {
		return err
	}
	err = v.ext.Unlink(dirIno, name)
	if errors.Is(err, ext2.ErrFileNotFound) {
		return ErrNotFound
	}
	return err
}

// resolveExt2Dir walks components from the ext2 root inode, following only
// directory entries.
func (v *FS) resolveExt2Dir(components []string) (uint32, error) {
	cur := uint32(ext2.RootInode)
	for _, name := range components {
		entry, found, err := v.ext.Lookup(cur, name)
		if err != nil {
			return 0, err
		}
		if !found {
			return 0, ErrNotFound
		}
		if !entry.IsDir {
			return 0, ErrNotDirectory
		}
		cur = entry.Inode
	}
	return cur, nil
}
