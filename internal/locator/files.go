package locator

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Result is the outcome of Modify.
type Result struct {
	// File is the path of the modified file.
	File string

	// Source is the full modified file content.
	Source string

	// Span locates the modified function in Source.
	Span Span
}

// Modify injects text into the function selected by target. When file is
// empty the first file, in path order, declaring the function is used;
// otherwise only that file is considered. The function is located again
// in the modified source, so the returned span is valid for
// Result.Source.
func Modify(files map[string]string, file string, target Target, text string, afterLine int) (Result, error) {
	var content string
	if file != "" {
		c, ok := files[file]
		if !ok {
			return Result{}, fmt.Errorf("%w: file %s not loaded", ErrNotFound, file)
		}
		content = c
	} else {
		if target.name == "" {
			return Result{}, fmt.Errorf("%w: a line target needs a file", ErrNotFound)
		}
		paths := make([]string, 0, len(files))
		for p := range files {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			if !strings.Contains(files[p], target.name) {
				continue
			}
			if _, err := Locate(files[p], target); err == nil {
				file, content = p, files[p]
				break
			}
		}
		if file == "" {
			return Result{}, fmt.Errorf("%w: %s in any file", ErrNotFound, target)
		}
	}

	span, err := Locate(content, target)
	if err != nil {
		return Result{}, err
	}
	modified, err := Inject(content, span, text, afterLine)
	if err != nil {
		return Result{}, err
	}

	// The declaration line does not move; relocate from it.
	relocated, err := Locate(modified, ByLine(span.StartLine))
	if err != nil {
		return Result{}, fmt.Errorf("relocate after injection: %w", err)
	}
	if relocated.StartLine != span.StartLine {
		return Result{}, fmt.Errorf("%w: relocated to line %d, expected %d", ErrNotFound, relocated.StartLine, span.StartLine)
	}

	return Result{File: file, Source: modified, Span: relocated}, nil
}

// LoadDirectory reads every .lua file below root.
func LoadDirectory(root string) (map[string]string, error) {
	files := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".lua") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[path] = string(data)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load lua files from %s: %w", root, err)
	}
	return files, nil
}
