package handlers

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"sandgate/internal/logger"
	"sandgate/internal/protocol/httpwire"
)

// listEntry is one row of a directory listing.
type listEntry struct {
	Name        string `json:"name"`
	IsDirectory bool   `json:"isDirectory"`
	Size        int64  `json:"size"`
	Modified    string `json:"modified"`
}

// List returns the contents of a sandbox directory. A directory that does
// not exist yet lists as empty rather than failing, so fresh accounts see an
// empty sandbox instead of an error.
func (h *Handler) List(req *httpwire.Request) Result {
	clientPath := req.QueryParam("path")
	if clientPath == "" {
		clientPath = "/"
	}

	resolved, res, okRes := h.resolve(req, clientPath)
	if !okRes {
		return res
	}

	dirEntries, err := os.ReadDir(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return okPayload("", map[string]any{"items": []listEntry{}})
		}
		logger.Error("List failed: path=%q err=%v", clientPath, err)
		return fail(StatusInternal, "Could not list directory")
	}

	items := make([]listEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		info, err := de.Info()
		if err != nil {
			// Entry vanished between ReadDir and Info.
			continue
		}
		items = append(items, listEntry{
			Name:        de.Name(),
			IsDirectory: de.IsDir(),
			Size:        info.Size(),
			Modified:    info.ModTime().UTC().Format(time.RFC3339),
		})
	}

	// Directories first, then files, each group sorted by name.
	sort.Slice(items, func(i, j int) bool {
		if items[i].IsDirectory != items[j].IsDirectory {
			return items[i].IsDirectory
		}
		return items[i].Name < items[j].Name
	})

	return okPayload("", map[string]any{"items": items})
}

// Upload stores the file part of a multipart body into the target directory,
// creating it if absent. An existing file with the same name is overwritten.
func (h *Handler) Upload(req *httpwire.Request) Result {
	resolved, res, okRes := h.resolve(req, req.QueryParam("path"))
	if !okRes {
		return res
	}

	part, found := httpwire.ExtractFilePart(req.Header("Content-Type"), req.Body)
	if !found {
		return fail(StatusBadRequest, "No filename found")
	}

	// The filename attribute is client-controlled; only its base name is
	// honored so it cannot smuggle path segments past the resolver.
	filename := filepath.Base(filepath.FromSlash(strings.ReplaceAll(part.Filename, "\\", "/")))
	if filename == "." || filename == string(filepath.Separator) {
		return fail(StatusBadRequest, "No filename found")
	}

	if err := os.MkdirAll(resolved, 0o755); err != nil {
		logger.Error("Upload: create target dir failed: path=%q err=%v", resolved, err)
		return fail(StatusInternal, "Could not create target directory")
	}

	target := filepath.Join(resolved, filename)
	if err := os.WriteFile(target, part.Content, 0o644); err != nil {
		logger.Error("Upload: write failed: path=%q err=%v", target, err)
		return fail(StatusInternal, "Could not write file")
	}

	logger.Info("Upload: %s (%d bytes)", target, len(part.Content))
	return okPayload("File uploaded", map[string]any{"filename": filename})
}

// Download resolves a file and hands it to the dispatcher for streaming.
func (h *Handler) Download(req *httpwire.Request) Result {
	resolved, res, okRes := h.resolve(req, req.QueryParam("path"))
	if !okRes {
		return res
	}

	info, err := os.Stat(resolved)
	if err != nil || info.IsDir() {
		return fail(StatusNotFound, "File not found")
	}

	return Result{
		Status: StatusOK,
		File: &FileDownload{
			Path:        resolved,
			ContentType: contentTypeFor(resolved),
			Filename:    filepath.Base(resolved),
		},
	}
}

type createRequest struct {
	Path        string `json:"path"`
	IsDirectory bool   `json:"isDirectory"`
}

// Create makes an empty file or a directory. Two request forms are accepted:
// the JSON body form with an isDirectory flag, and a legacy query-parameter
// form that always creates a directory.
func (h *Handler) Create(req *httpwire.Request) Result {
	body := createRequest{IsDirectory: true}
	if len(req.Body) > 0 {
		body = createRequest{}
		if err := json.Unmarshal(req.Body, &body); err != nil {
			return fail(StatusBadRequest, "Invalid request body")
		}
	} else {
		body.Path = req.QueryParam("path")
	}
	if body.Path == "" {
		return fail(StatusBadRequest, "Path is required")
	}

	resolved, res, okRes := h.resolve(req, body.Path)
	if !okRes {
		return res
	}

	if body.IsDirectory {
		if err := os.MkdirAll(resolved, 0o755); err != nil {
			logger.Error("Create: mkdir failed: path=%q err=%v", resolved, err)
			return fail(StatusInternal, "Could not create directory")
		}
		return ok("Directory created")
	}

	f, err := os.OpenFile(resolved, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		logger.Error("Create: file failed: path=%q err=%v", resolved, err)
		return fail(StatusInternal, "Could not create file")
	}
	f.Close()
	return ok("File created")
}

// Delete removes a file or, recursively, a directory. The isDir query flag
// selects which; deleting an absent file is a 404, deleting an absent
// directory succeeds because the end state is the same.
func (h *Handler) Delete(req *httpwire.Request) Result {
	resolved, res, okRes := h.resolve(req, req.QueryParam("path"))
	if !okRes {
		return res
	}

	if req.QueryParam("isDir") == "true" {
		if err := os.RemoveAll(resolved); err != nil {
			logger.Error("Delete: remove dir failed: path=%q err=%v", resolved, err)
			return fail(StatusInternal, "Could not delete directory")
		}
		return ok("Directory deleted")
	}

	if _, err := os.Stat(resolved); err != nil {
		return fail(StatusNotFound, "File not found")
	}
	if err := os.Remove(resolved); err != nil {
		logger.Error("Delete: remove file failed: path=%q err=%v", resolved, err)
		return fail(StatusInternal, "Could not delete file")
	}
	return ok("File deleted")
}

type saveRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Save overwrites a file's full content, creating parent directories as
// needed.
func (h *Handler) Save(req *httpwire.Request) Result {
	var body saveRequest
	if err := json.Unmarshal(req.Body, &body); err != nil {
		return fail(StatusBadRequest, "Invalid request body")
	}
	if body.Path == "" {
		return fail(StatusBadRequest, "Path is required")
	}

	resolved, res, okRes := h.resolve(req, body.Path)
	if !okRes {
		return res
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		logger.Error("Save: create parent failed: path=%q err=%v", resolved, err)
		return fail(StatusInternal, "Could not create parent directory")
	}
	if err := os.WriteFile(resolved, []byte(body.Content), 0o644); err != nil {
		logger.Error("Save: write failed: path=%q err=%v", resolved, err)
		return fail(StatusInternal, "Could not save file")
	}
	return ok("File saved")
}

type renameRequest struct {
	Path        string `json:"path"`
	NewName     string `json:"newName"`
	IsDirectory bool   `json:"isDirectory"`
}

// Rename moves an item to a sibling name inside its parent directory. The
// new name must be a bare name; a sibling that already exists is a conflict
// and both items are left untouched.
func (h *Handler) Rename(req *httpwire.Request) Result {
	var body renameRequest
	if err := json.Unmarshal(req.Body, &body); err != nil {
		return fail(StatusBadRequest, "Invalid request body")
	}
	if body.Path == "" || body.NewName == "" {
		return fail(StatusBadRequest, "Path and newName are required")
	}
	if strings.ContainsAny(body.NewName, `/\`) || body.NewName == ".." || body.NewName == "." {
		return fail(StatusBadRequest, "Invalid new name")
	}

	resolved, res, okRes := h.resolve(req, body.Path)
	if !okRes {
		return res
	}

	if _, err := os.Stat(resolved); err != nil {
		return fail(StatusNotFound, "Item not found")
	}

	target := filepath.Join(filepath.Dir(resolved), body.NewName)
	if _, err := os.Stat(target); err == nil {
		return fail(StatusConflict, "An item with that name already exists")
	}

	if err := os.Rename(resolved, target); err != nil {
		logger.Error("Rename failed: from=%q to=%q err=%v", resolved, target, err)
		return fail(StatusInternal, "Could not rename item")
	}
	return ok("Item renamed")
}
