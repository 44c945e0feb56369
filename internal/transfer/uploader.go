// Package transfer uploads files to the target course through the LMS's
// multi-step handshake protocol and keeps a content-hash manifest so reruns
// skip bytes that already arrived.
package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	humanize "github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/campuskit/coursemover/internal/canvas"
	"github.com/campuskit/coursemover/internal/fsutil"
)

// DuplicatePolicy tells the target what to do when the destination folder
// already holds a file with the same name.
type DuplicatePolicy string

const (
	Overwrite DuplicatePolicy = "overwrite"
	Rename    DuplicatePolicy = "rename"
)

// ErrUnknownUploadProtocol means the handshake response matched neither wire
// protocol the uploader speaks. It is fatal for that file only.
var ErrUnknownUploadProtocol = errors.New("transfer: upload parameters match no known wire protocol")

// Result reports the outcome of one Upload call.
type Result struct {
	NewID   int
	Skipped bool
}

// Uploader moves files into one target course. It is bound to the target API
// client, the course, and the manifest for the export being imported.
type Uploader struct {
	client   *canvas.Client
	courseID int
	manifest *Manifest
	httpc    *http.Client
	log      *zap.Logger
}

// UploaderOption configures an Uploader.
type UploaderOption func(*Uploader)

// WithHTTPClient replaces the client used for the raw transfer to the upload
// host (which is usually not the API host).
func WithHTTPClient(h *http.Client) UploaderOption { return func(u *Uploader) { u.httpc = h } }

// WithLogger sets the structured logger for per-stage progress.
func WithLogger(l *zap.Logger) UploaderOption { return func(u *Uploader) { u.log = l } }

// NewUploader builds an uploader for the given target course.
func NewUploader(client *canvas.Client, courseID int, manifest *Manifest, opts ...UploaderOption) *Uploader {
	u := &Uploader{
		client:   client,
		courseID: courseID,
		manifest: manifest,
		log:      zap.NewNop(),
		httpc: &http.Client{
			Timeout: 10 * time.Minute,
			// Redirects from the upload host are the finalize step and must
			// be followed with API auth, not blindly by the transport.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload moves the file at filePath into destFolder on the target course.
// relPath is the export-relative path used as the manifest key. When the
// manifest already holds a matching hash for this target course, no network
// call is made and the remembered id is returned with Skipped set.
func (u *Uploader) Upload(ctx context.Context, filePath, relPath, destFolder string, onDuplicate DuplicatePolicy) (Result, error) {
	sha, err := fsutil.SHA256File(filePath)
	if err != nil {
		return Result{}, fmt.Errorf("hashing %s: %w", relPath, err)
	}

	if prev, ok := u.manifest.Lookup(relPath); ok && prev.SHA256 == sha && prev.TargetCourseID == u.courseID {
		u.log.Info("skipped upload (same sha256)",
			zap.String("path", relPath), zap.Int("new_id", prev.NewID))
		return Result{NewID: prev.NewID, Skipped: true}, nil
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return Result{}, fmt.Errorf("stat %s: %w", relPath, err)
	}

	// Handshake: request an upload slot.
	slot, err := u.client.Post(ctx, fmt.Sprintf("courses/%d/files", u.courseID), map[string]any{
		"name":               filepath.Base(filePath),
		"size":               info.Size(),
		"parent_folder_path": destFolder,
		"on_duplicate":       string(onDuplicate),
	})
	if err != nil {
		return Result{}, fmt.Errorf("initiating upload for %s: %w", relPath, err)
	}

	uploadURL, _ := slot["upload_url"].(string)
	if uploadURL == "" {
		return Result{}, fmt.Errorf("initiating upload for %s: handshake returned no upload_url", relPath)
	}
	params, _ := slot["upload_params"].(map[string]any)

	fields, err := wireFields(uploadURL, params, filepath.Base(filePath), info.Size())
	if err != nil {
		return Result{}, fmt.Errorf("upload for %s: %w", relPath, err)
	}

	final, err := u.transfer(ctx, uploadURL, fields, filePath)
	if err != nil {
		return Result{}, fmt.Errorf("transferring %s: %w", relPath, err)
	}

	newID, ok := attachmentID(final)
	if !ok {
		return Result{}, fmt.Errorf("finalizing %s: response carried no file id", relPath)
	}

	if err := u.manifest.Record(relPath, ManifestEntry{
		SHA256:         sha,
		NewID:          newID,
		TargetCourseID: u.courseID,
	}); err != nil {
		return Result{}, err
	}

	u.log.Info("uploaded file",
		zap.String("path", relPath), zap.Int("new_id", newID),
		zap.String("size", humanSize(info.Size())))
	return Result{NewID: newID}, nil
}

// transfer performs the multipart POST to the upload host and resolves the
// final attachment object, following a finalize redirect when one is issued.
func (u *Uploader) transfer(ctx context.Context, uploadURL string, fields []wireField, filePath string) (map[string]any, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return nil, err
		}
	}

	// The file part must come last; hosts stop reading after it.
	src, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	part, err := mw.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		src.Close()
		return nil, err
	}
	if _, err := io.Copy(part, src); err != nil {
		src.Close()
		return nil, err
	}
	src.Close()
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := u.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		loc := resp.Header.Get("Location")
		if loc == "" {
			return nil, fmt.Errorf("upload host redirected without a Location header")
		}
		return u.client.GetAbsolute(ctx, loc)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("upload host returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return parseObject(data)
}

type wireField struct {
	name  string
	value string
}

// Keys the plain-form protocol accepts: a small fixed set describing the file
// itself.
var plainFormKeys = map[string]bool{
	"filename":     true,
	"content_type": true,
	"content-type": true,
	"size":         true,
}

// Keys that identify the signed-policy protocol.
var signedPolicyKeys = map[string]bool{
	"policy":                true,
	"signature":             true,
	"awsaccesskeyid":        true,
	"x-amz-signature":       true,
	"x-amz-credential":      true,
	"x-amz-algorithm":       true,
	"success_action_status": true,
	"acl":                   true,
	"key":                   true,
}

// wireFields decides which wire protocol the upload slot speaks and returns
// the form fields for the transfer. The handshake response never names its
// provider, so the decision rests on the upload host and the parameter key
// set alone.
func wireFields(uploadURL string, params map[string]any, filename string, size int64) ([]wireField, error) {
	if isSignedPolicy(uploadURL, params) {
		// Signed-policy slots are strict: every handshake parameter is
		// forwarded verbatim, nothing is added.
		fields := make([]wireField, 0, len(params))
		for k, v := range params {
			fields = append(fields, wireField{name: k, value: fmt.Sprint(v)})
		}
		sort.Slice(fields, func(i, j int) bool { return fields[i].name < fields[j].name })
		return fields, nil
	}

	if isPlainForm(uploadURL, params) {
		fields := []wireField{
			{name: "filename", value: filename},
			{name: "size", value: fmt.Sprint(size)},
		}
		for k, v := range params {
			if strings.EqualFold(k, "filename") || strings.EqualFold(k, "size") {
				continue
			}
			fields = append(fields, wireField{name: k, value: fmt.Sprint(v)})
		}
		sort.Slice(fields, func(i, j int) bool { return fields[i].name < fields[j].name })
		return fields, nil
	}

	return nil, ErrUnknownUploadProtocol
}

func isSignedPolicy(uploadURL string, params map[string]any) bool {
	for k := range params {
		if signedPolicyKeys[strings.ToLower(k)] {
			return true
		}
	}
	host := hostOf(uploadURL)
	return strings.HasSuffix(host, ".amazonaws.com") || strings.Contains(host, "s3.")
}

func isPlainForm(uploadURL string, params map[string]any) bool {
	for k := range params {
		if !plainFormKeys[strings.ToLower(k)] {
			return false
		}
	}
	return true
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Host)
}

// attachmentID extracts the new file id from a finalized body: either a
// top-level id or one nested under "attachment".
func attachmentID(body map[string]any) (int, bool) {
	if id, ok := numericID(body["id"]); ok {
		return id, true
	}
	if nested, ok := body["attachment"].(map[string]any); ok {
		return numericID(nested["id"])
	}
	return 0, false
}

func parseObject(data []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("upload host returned an empty body")
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("parsing upload response: %w", err)
	}
	return obj, nil
}

func humanSize(n int64) string { return humanize.Bytes(uint64(n)) }

func numericID(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}
