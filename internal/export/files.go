package export

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/campuskit/coursemover/internal/canvas"
	"github.com/campuskit/coursemover/internal/fsutil"
	"github.com/campuskit/coursemover/internal/model"
)

const fallbackFolder = "unfiled"

// Files downloads every course file into a tree mirroring the source folder
// structure, writing a <name>.metadata.json sidecar next to each file.
func (e *Exporter) Files(ctx context.Context) (int, error) {
	folders, err := e.folderPaths(ctx)
	if err != nil {
		return 0, err
	}

	list, err := e.client.GetList(ctx, fmt.Sprintf("courses/%d/files", e.courseID), nil)
	if err != nil {
		return 0, err
	}

	// Deterministic order: folder path, then filename, then id.
	sort.SliceStable(list, func(i, j int) bool {
		fi := folderKey(folders, list[i])
		fj := folderKey(folders, list[j])
		if fi != fj {
			return fi < fj
		}
		ni, nj := canvas.String(list[i], "filename"), canvas.String(list[j], "filename")
		if ni != nj {
			return ni < nj
		}
		return canvas.Int(list[i], "id") < canvas.Int(list[j], "id")
	})

	exported := 0
	for _, f := range list {
		id := canvas.Int(f, "id")
		filename := canvas.String(f, "filename")
		if filename == "" {
			filename = fmt.Sprintf("file-%d", id)
		}

		segs, folderName := folderFor(folders, f)
		dir := filepath.Join(append([]string{e.root, "files"}, segs...)...)
		if err := fsutil.EnsureDir(dir); err != nil {
			return exported, err
		}
		destPath := filepath.Join(dir, filename)

		downloadURL, err := e.downloadURL(ctx, f, id)
		if err != nil {
			return exported, err
		}
		if downloadURL == "" {
			e.log.Warn("file has no download url, skipping content",
				zap.Int("file_id", id), zap.String("filename", filename))
		} else if err := e.client.Download(ctx, downloadURL, destPath); err != nil {
			return exported, fmt.Errorf("downloading %s: %w", filename, err)
		}

		meta := model.FileMeta{
			ID:           id,
			FileName:     filename,
			ContentType:  contentType(f),
			FolderPath:   folderName,
			Size:         int64(canvas.Float(f, "size")),
			SourceAPIURL: fmt.Sprintf("%s/files/%d", e.client.APIRoot(), id),
		}
		if downloadURL != "" {
			sum, err := fsutil.SHA256File(destPath)
			if err != nil {
				return exported, err
			}
			meta.SHA256 = sum
			rel, err := fsutil.RelPath(destPath, e.root)
			if err != nil {
				return exported, err
			}
			meta.FilePath = rel
		}

		if err := e.writeJSON(destPath+".metadata.json", meta); err != nil {
			return exported, err
		}
		exported++
	}
	return exported, nil
}

// folderPaths maps folder id to sanitized path segments relative to the
// course file root. The leading "course files" segment the API reports on
// every full_name is dropped.
func (e *Exporter) folderPaths(ctx context.Context) (map[int][]string, error) {
	list, err := e.client.GetList(ctx, fmt.Sprintf("courses/%d/folders", e.courseID), nil)
	if err != nil {
		return nil, fmt.Errorf("fetching folders: %w", err)
	}

	paths := make(map[int][]string, len(list))
	for _, folder := range list {
		full := canvas.String(folder, "full_name")
		parts := strings.Split(full, "/")
		if len(parts) > 0 && strings.EqualFold(parts[0], "course files") {
			parts = parts[1:]
		}
		segs := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := fsutil.SanitizeSlug(p); s != "" {
				segs = append(segs, s)
			}
		}
		paths[canvas.Int(folder, "id")] = segs
	}
	return paths, nil
}

func (e *Exporter) downloadURL(ctx context.Context, f map[string]any, id int) (string, error) {
	if u := canvas.String(f, "url"); u != "" {
		return u, nil
	}
	detail, err := e.client.GetObject(ctx, fmt.Sprintf("files/%d", id), url.Values{})
	if err != nil {
		return "", fmt.Errorf("file %d detail: %w", id, err)
	}
	return canvas.String(detail, "url"), nil
}

// folderFor resolves a file's folder segments. Unknown folders fall back to
// a catch-all directory; the course file root yields no extra segments.
func folderFor(folders map[int][]string, f map[string]any) (segs []string, name string) {
	segs, ok := folders[canvas.Int(f, "folder_id")]
	if !ok {
		return []string{fallbackFolder}, fallbackFolder
	}
	return segs, strings.Join(segs, "/")
}

func folderKey(folders map[int][]string, f map[string]any) string {
	_, name := folderFor(folders, f)
	return name
}

// contentType tolerates both spellings the API has used for the MIME field.
func contentType(f map[string]any) string {
	if ct := canvas.String(f, "content-type"); ct != "" {
		return ct
	}
	return canvas.String(f, "content_type")
}
