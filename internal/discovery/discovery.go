// Package discovery finds and parses product sheets under the given paths.
package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"listory/internal/listing"
)

const maxSheetBytes = 1 << 20

var sheetExts = map[string]struct{}{".md": {}, ".markdown": {}, ".txt": {}}

func isSheetExt(path string) bool {
	_, ok := sheetExts[strings.ToLower(filepath.Ext(path))]
	return ok
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

// Source is one product sheet found on disk.
type Source struct {
	Path  string
	Sheet listing.Sheet
}

// Failure is a sheet that carried the marker but could not be parsed.
type Failure struct {
	Path string
	Err  error
}

// Result lists parsed sheets ordered by path. Files that are not product
// sheets are skipped silently when found by a directory scan.
type Result struct {
	Sources  []Source
	Failures []Failure
	Warnings []string
}

// Products returns the parsed products in source order.
func (r Result) Products() []listing.Product {
	out := make([]listing.Product, 0, len(r.Sources))
	for _, s := range r.Sources {
		out = append(out, s.Sheet.Product)
	}
	return out
}

// Discover resolves inputs to product sheets. An input file that is not a
// product sheet is an error; inside directories such files are ignored.
func Discover(inputs []string) (Result, error) {
	if len(inputs) == 0 {
		return Result{}, fmt.Errorf("未提供输入路径")
	}
	seen := map[string]struct{}{}
	res := Result{}

	add := func(path string, raw []byte) {
		key := path
		if abs, err := filepath.Abs(path); err == nil {
			key = abs
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		sheet, err := listing.Parse(string(raw))
		if err != nil {
			res.Failures = append(res.Failures, Failure{Path: path, Err: err})
			return
		}
		sheet.Product.SourcePath = path
		res.Sources = append(res.Sources, Source{Path: path, Sheet: sheet})
	}

	for _, in := range inputs {
		in = strings.TrimSpace(in)
		if in == "" {
			continue
		}
		st, err := os.Stat(in)
		if err != nil {
			return Result{}, fmt.Errorf("输入路径无效（%s）：%w", in, err)
		}
		if st.IsDir() {
			if err := scanDir(in, &res, add); err != nil {
				return Result{}, err
			}
			continue
		}

		raw, err := readSheet(in, st)
		if err != nil {
			return Result{}, err
		}
		if !listing.IsProductSheet(string(raw)) {
			return Result{}, fmt.Errorf("文件不是产品资料格式（缺少首行标志）：%s", in)
		}
		add(filepath.Clean(in), raw)
	}

	if len(res.Sources) == 0 && len(res.Failures) == 0 {
		return Result{}, fmt.Errorf("未找到任何产品资料文件")
	}
	sort.Slice(res.Sources, func(i, j int) bool { return res.Sources[i].Path < res.Sources[j].Path })
	sort.Slice(res.Failures, func(i, j int) bool { return res.Failures[i].Path < res.Failures[j].Path })
	return res, nil
}

func readSheet(path string, st os.FileInfo) ([]byte, error) {
	if st.Size() > maxSheetBytes {
		return nil, fmt.Errorf("文件过大（%d 字节）：%s", st.Size(), path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取文件失败（%s）：%w", path, err)
	}
	return raw, nil
}

func scanDir(root string, res *Result, add func(string, []byte)) error {
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != root && hidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !isSheetExt(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("读取失败已跳过：%s", path))
			return nil
		}
		raw, err := readSheet(path, info)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%v，已跳过", err))
			return nil
		}
		if listing.IsProductSheet(string(raw)) {
			add(path, raw)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("扫描目录失败（%s）：%w", root, err)
	}
	return nil
}
