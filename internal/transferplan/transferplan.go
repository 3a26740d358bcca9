// Package transferplan builds the ordered Entry sequence a StreamClient
// streams out, walking caller-supplied filesystem roots depth-first
// (§3 TransferPlan, §4.2.4 send plan).
package transferplan

import (
	"os"
	"path/filepath"
	"sort"
)

// Kind distinguishes a file entry from a directory marker.
type Kind int

const (
	File Kind = iota
	Directory
)

// Entry is one logical record of a TransferPlan: a relative path, its
// kind, and (for files) its size. Directory entries always carry Size -1
// and emit no bytes on the wire.
type Entry struct {
	RelativePath string
	Kind         Kind
	Size         int64
	absPath      string // not part of the wire format; used by the sender to open the file
}

// AbsPath returns the on-disk path an Entry's bytes are read from. Empty
// for directory entries.
func (e Entry) AbsPath() string { return e.absPath }

// Plan is a precomputed TransferPlan: the entries plus totals the Dukto
// and NitroShare headers both need up front.
type Plan struct {
	Entries    []Entry
	FileCount  int
	TotalBytes int64
}

// Build walks each root depth-first and returns the resulting Plan. A root
// that is itself a regular file contributes one Entry named by its base;
// a root that is a directory contributes a Directory entry for itself
// followed by its full subtree, with relative paths rooted at the
// directory's own base name so the receiver reconstructs the same tree
// shape the sender had.
func Build(roots []string) (Plan, error) {
	var plan Plan
	for _, root := range roots {
		info, err := os.Lstat(root)
		if err != nil {
			return Plan{}, err
		}
		base := filepath.Base(filepath.Clean(root))
		if !info.IsDir() {
			plan.Entries = append(plan.Entries, Entry{RelativePath: base, Kind: File, Size: info.Size(), absPath: root})
			plan.FileCount++
			plan.TotalBytes += info.Size()
			continue
		}
		if err := walkDir(root, base, &plan); err != nil {
			return Plan{}, err
		}
	}
	return plan, nil
}

func walkDir(absDir, relDir string, plan *Plan) error {
	plan.Entries = append(plan.Entries, Entry{RelativePath: filepath.ToSlash(relDir), Kind: Directory, Size: -1})

	dirEntries, err := os.ReadDir(absDir)
	if err != nil {
		return err
	}
	sort.Slice(dirEntries, func(i, j int) bool { return dirEntries[i].Name() < dirEntries[j].Name() })

	for _, de := range dirEntries {
		childAbs := filepath.Join(absDir, de.Name())
		childRel := filepath.Join(relDir, de.Name())
		if de.IsDir() {
			if err := walkDir(childAbs, childRel, plan); err != nil {
				return err
			}
			continue
		}
		info, err := de.Info()
		if err != nil {
			return err
		}
		plan.Entries = append(plan.Entries, Entry{RelativePath: filepath.ToSlash(childRel), Kind: File, Size: info.Size(), absPath: childAbs})
		plan.FileCount++
		plan.TotalBytes += info.Size()
	}
	return nil
}
