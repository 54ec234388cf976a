package handlers

import (
	"bufio"
	"bytes"
	"mime/multipart"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandgate/internal/protocol/httpwire"
	"sandgate/pkg/credentials"
	"sandgate/pkg/sandbox"
	"sandgate/pkg/session"
)

const (
	testUser     = "alice"
	testPassword = "correct horse battery staple"
)

type fixture struct {
	handler *Handler
	root    string
	token   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	root := t.TempDir()
	mapping, err := sandbox.LoadMapping(filepath.Join(root, "mapping.yaml"))
	require.NoError(t, err)

	sessions := session.NewStore(0)
	resolver, err := sandbox.NewResolver(root, mapping, sessions)
	require.NoError(t, err)

	creds := credentials.NewMemoryStore(credentials.Options{})
	creds.SetObserver(mapping)
	require.NoError(t, creds.CreateAccount(testUser, testPassword))

	token, err := sessions.Issue(testUser)
	require.NoError(t, err)

	return &fixture{
		handler: New(sessions, resolver, mapping, creds),
		root:    root,
		token:   token,
	}
}

// userPath returns the absolute path of a file inside the test user's
// sandbox.
func (f *fixture) userPath(parts ...string) string {
	return filepath.Join(append([]string{f.root, testUser}, parts...)...)
}

func (f *fixture) writeUserFile(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(f.userPath(name)), 0o755))
	require.NoError(t, os.WriteFile(f.userPath(name), []byte(content), 0o644))
}

// request builds a parsed request the way the dispatcher would hand it over.
func request(t *testing.T, method, path string, query url.Values, token string, contentType string, body []byte) *httpwire.Request {
	t.Helper()

	target := path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	raw := method + " " + target + " HTTP/1.1\r\n"
	if token != "" {
		raw += "Authorization: Bearer " + token + "\r\n"
	}
	if contentType != "" {
		raw += "Content-Type: " + contentType + "\r\n"
	}
	if len(body) > 0 {
		raw += "Content-Length: " + strconv.Itoa(len(body)) + "\r\n"
	}
	raw += "\r\n"

	req, err := httpwire.ReadRequest(bufio.NewReader(strings.NewReader(raw+string(body))), 32<<20)
	require.NoError(t, err)
	return req
}

func jsonRequest(t *testing.T, path, token, body string) *httpwire.Request {
	t.Helper()
	return request(t, "POST", path, nil, token, "application/json", []byte(body))
}

func items(t *testing.T, res Result) []listEntry {
	t.Helper()
	require.Equal(t, StatusOK, res.Status, "message: %s", res.Message)
	entries, ok := res.Payload["items"].([]listEntry)
	require.True(t, ok)
	return entries
}

func TestLoginIssuesToken(t *testing.T) {
	f := newFixture(t)

	res := f.handler.Login(jsonRequest(t, "/api/login", "",
		`{"username":"`+testUser+`","password":"`+testPassword+`"}`))

	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, testUser, res.Payload["username"])
	token, _ := res.Payload["token"].(string)
	assert.NotEmpty(t, token)

	username, valid := f.handler.Sessions.Validate(token)
	assert.True(t, valid)
	assert.Equal(t, testUser, username)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	f := newFixture(t)

	res := f.handler.Login(jsonRequest(t, "/api/login", "",
		`{"username":"`+testUser+`","password":"wrong"}`))
	assert.Equal(t, StatusUnauthorized, res.Status)
}

func TestLoginRejectsMalformedBody(t *testing.T) {
	f := newFixture(t)
	res := f.handler.Login(jsonRequest(t, "/api/login", "", `{not json`))
	assert.Equal(t, StatusBadRequest, res.Status)
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newFixture(t)

	req := request(t, "POST", "/api/logout", nil, f.token, "", nil)
	assert.Equal(t, StatusOK, f.handler.Logout(req).Status)
	assert.Equal(t, StatusOK, f.handler.Logout(req).Status)

	_, valid := f.handler.Sessions.Validate(f.token)
	assert.False(t, valid)
}

func TestListEmptySandboxSucceeds(t *testing.T) {
	f := newFixture(t)

	// The user's sandbox directory does not exist yet.
	res := f.handler.List(request(t, "GET", "/api/files/list",
		url.Values{"path": {"/"}}, f.token, "", nil))

	assert.Empty(t, items(t, res))
}

func TestListOrdersDirectoriesFirst(t *testing.T) {
	f := newFixture(t)
	f.writeUserFile(t, "zeta.txt", "z")
	f.writeUserFile(t, "alpha.txt", "a")
	require.NoError(t, os.MkdirAll(f.userPath("docs"), 0o755))
	require.NoError(t, os.MkdirAll(f.userPath("assets"), 0o755))

	res := f.handler.List(request(t, "GET", "/api/files/list",
		url.Values{"path": {"/"}}, f.token, "", nil))

	entries := items(t, res)
	require.Len(t, entries, 4)
	assert.Equal(t, "assets", entries[0].Name)
	assert.Equal(t, "docs", entries[1].Name)
	assert.Equal(t, "alpha.txt", entries[2].Name)
	assert.Equal(t, "zeta.txt", entries[3].Name)
	assert.True(t, entries[0].IsDirectory)
	assert.False(t, entries[3].IsDirectory)
}

func TestListRejectsInvalidToken(t *testing.T) {
	f := newFixture(t)
	res := f.handler.List(request(t, "GET", "/api/files/list",
		url.Values{"path": {"/"}}, "bogus", "", nil))
	assert.Equal(t, StatusUnauthorized, res.Status)
}

func TestListRejectsTraversal(t *testing.T) {
	f := newFixture(t)
	res := f.handler.List(request(t, "GET", "/api/files/list",
		url.Values{"path": {"../../etc"}}, f.token, "", nil))
	assert.Equal(t, StatusUnauthorized, res.Status)
}

func TestCreateFileThenListShowsIt(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(f.userPath(), 0o755))

	res := f.handler.Create(jsonRequest(t, "/api/files/create", f.token,
		`{"path":"notes.txt","isDirectory":false}`))
	require.Equal(t, StatusOK, res.Status, "message: %s", res.Message)

	entries := items(t, f.handler.List(request(t, "GET", "/api/files/list",
		url.Values{"path": {"/"}}, f.token, "", nil)))
	require.Len(t, entries, 1)
	assert.Equal(t, "notes.txt", entries[0].Name)
	assert.False(t, entries[0].IsDirectory)
}

func TestCreateDirectoryMakesParents(t *testing.T) {
	f := newFixture(t)

	res := f.handler.Create(jsonRequest(t, "/api/files/create", f.token,
		`{"path":"a/b/c","isDirectory":true}`))
	require.Equal(t, StatusOK, res.Status)

	info, err := os.Stat(f.userPath("a", "b", "c"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCreateLegacyQueryFormCreatesDirectory(t *testing.T) {
	f := newFixture(t)

	res := f.handler.Create(request(t, "POST", "/api/files/create",
		url.Values{"path": {"reports"}}, f.token, "", nil))
	require.Equal(t, StatusOK, res.Status)

	info, err := os.Stat(f.userPath("reports"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestRenameConflictLeavesBothFiles(t *testing.T) {
	f := newFixture(t)
	f.writeUserFile(t, "notes.txt", "original")
	f.writeUserFile(t, "draft.txt", "other")

	res := f.handler.Rename(jsonRequest(t, "/api/files/rename", f.token,
		`{"path":"notes.txt","newName":"draft.txt","isDirectory":false}`))
	assert.Equal(t, StatusConflict, res.Status)

	notes, err := os.ReadFile(f.userPath("notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(notes))
	draft, err := os.ReadFile(f.userPath("draft.txt"))
	require.NoError(t, err)
	assert.Equal(t, "other", string(draft))
}

func TestRenameMovesFile(t *testing.T) {
	f := newFixture(t)
	f.writeUserFile(t, "notes.txt", "content")

	res := f.handler.Rename(jsonRequest(t, "/api/files/rename", f.token,
		`{"path":"notes.txt","newName":"draft.txt","isDirectory":false}`))
	require.Equal(t, StatusOK, res.Status, "message: %s", res.Message)

	_, err := os.Stat(f.userPath("notes.txt"))
	assert.True(t, os.IsNotExist(err))
	content, err := os.ReadFile(f.userPath("draft.txt"))
	require.NoError(t, err)
	assert.Equal(t, "content", string(content))
}

func TestRenameRejectsNameWithSeparators(t *testing.T) {
	f := newFixture(t)
	f.writeUserFile(t, "notes.txt", "content")

	for _, name := range []string{"sub/evil.txt", `sub\evil.txt`, "..", "."} {
		res := f.handler.Rename(jsonRequest(t, "/api/files/rename", f.token,
			`{"path":"notes.txt","newName":"`+name+`","isDirectory":false}`))
		assert.Equal(t, StatusBadRequest, res.Status, "name %q", name)
	}
}

func TestRenameMissingItemIs404(t *testing.T) {
	f := newFixture(t)
	res := f.handler.Rename(jsonRequest(t, "/api/files/rename", f.token,
		`{"path":"ghost.txt","newName":"other.txt","isDirectory":false}`))
	assert.Equal(t, StatusNotFound, res.Status)
}

func multipartUpload(t *testing.T, filename string, content []byte) (string, []byte) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	} else {
		part, err := writer.CreateFormField("file")
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return writer.FormDataContentType(), buf.Bytes()
}

func TestUploadWritesFile(t *testing.T) {
	f := newFixture(t)
	contentType, body := multipartUpload(t, "report.pdf", []byte("pdf bytes"))

	res := f.handler.Upload(request(t, "POST", "/api/files/upload",
		url.Values{"path": {"inbox"}}, f.token, contentType, body))
	require.Equal(t, StatusOK, res.Status, "message: %s", res.Message)
	assert.Equal(t, "report.pdf", res.Payload["filename"])

	written, err := os.ReadFile(f.userPath("inbox", "report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "pdf bytes", string(written))
}

func TestUploadOverwritesExisting(t *testing.T) {
	f := newFixture(t)
	f.writeUserFile(t, "report.txt", "old")
	contentType, body := multipartUpload(t, "report.txt", []byte("new"))

	res := f.handler.Upload(request(t, "POST", "/api/files/upload",
		url.Values{"path": {"/"}}, f.token, contentType, body))
	require.Equal(t, StatusOK, res.Status)

	written, err := os.ReadFile(f.userPath("report.txt"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(written))
}

func TestUploadWithoutFilenameIs400(t *testing.T) {
	f := newFixture(t)
	contentType, body := multipartUpload(t, "", []byte("field value"))

	res := f.handler.Upload(request(t, "POST", "/api/files/upload",
		url.Values{"path": {"inbox"}}, f.token, contentType, body))
	assert.Equal(t, StatusBadRequest, res.Status)
	assert.Equal(t, "No filename found", res.Message)

	// Nothing may have been written.
	entries, err := os.ReadDir(f.userPath("inbox"))
	if err == nil {
		assert.Empty(t, entries)
	}
}

func TestUploadStripsPathFromFilename(t *testing.T) {
	f := newFixture(t)
	contentType, body := multipartUpload(t, "../escape.txt", []byte("x"))

	res := f.handler.Upload(request(t, "POST", "/api/files/upload",
		url.Values{"path": {"/"}}, f.token, contentType, body))
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "escape.txt", res.Payload["filename"])

	_, err := os.Stat(f.userPath("escape.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(f.root, "escape.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestDownloadStreamsFile(t *testing.T) {
	f := newFixture(t)
	f.writeUserFile(t, "song.mp3", "audio")

	res := f.handler.Download(request(t, "GET", "/api/files/download",
		url.Values{"path": {"song.mp3"}}, f.token, "", nil))
	require.Equal(t, StatusOK, res.Status)
	require.NotNil(t, res.File)
	assert.Equal(t, f.userPath("song.mp3"), res.File.Path)
	assert.Equal(t, "audio/mpeg", res.File.ContentType)
	assert.Equal(t, "song.mp3", res.File.Filename)
}

func TestDownloadMissingFileIs404(t *testing.T) {
	f := newFixture(t)
	res := f.handler.Download(request(t, "GET", "/api/files/download",
		url.Values{"path": {"ghost.txt"}}, f.token, "", nil))
	assert.Equal(t, StatusNotFound, res.Status)
}

func TestDownloadDirectoryIs404(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(f.userPath("docs"), 0o755))

	res := f.handler.Download(request(t, "GET", "/api/files/download",
		url.Values{"path": {"docs"}}, f.token, "", nil))
	assert.Equal(t, StatusNotFound, res.Status)
}

func TestSaveCreatesParentsAndOverwrites(t *testing.T) {
	f := newFixture(t)

	res := f.handler.Save(jsonRequest(t, "/api/files/save", f.token,
		`{"path":"docs/readme.md","content":"first"}`))
	require.Equal(t, StatusOK, res.Status, "message: %s", res.Message)

	res = f.handler.Save(jsonRequest(t, "/api/files/save", f.token,
		`{"path":"docs/readme.md","content":"second"}`))
	require.Equal(t, StatusOK, res.Status)

	content, err := os.ReadFile(f.userPath("docs", "readme.md"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(content))
}

func TestDeleteFile(t *testing.T) {
	f := newFixture(t)
	f.writeUserFile(t, "notes.txt", "x")

	res := f.handler.Delete(request(t, "POST", "/api/files/delete",
		url.Values{"path": {"notes.txt"}, "isDir": {"false"}}, f.token, "", nil))
	require.Equal(t, StatusOK, res.Status)

	_, err := os.Stat(f.userPath("notes.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteMissingFileIs404(t *testing.T) {
	f := newFixture(t)
	res := f.handler.Delete(request(t, "POST", "/api/files/delete",
		url.Values{"path": {"ghost.txt"}, "isDir": {"false"}}, f.token, "", nil))
	assert.Equal(t, StatusNotFound, res.Status)
}

func TestDeleteDirectoryIsRecursive(t *testing.T) {
	f := newFixture(t)
	f.writeUserFile(t, filepath.Join("docs", "deep", "file.txt"), "x")

	res := f.handler.Delete(request(t, "POST", "/api/files/delete",
		url.Values{"path": {"docs"}, "isDir": {"true"}}, f.token, "", nil))
	require.Equal(t, StatusOK, res.Status)

	_, err := os.Stat(f.userPath("docs"))
	assert.True(t, os.IsNotExist(err))
}

func TestPageServesHTML(t *testing.T) {
	f := newFixture(t)
	res := f.handler.Page(request(t, "GET", "/", nil, "", "", nil))
	assert.Equal(t, StatusOK, res.Status)
	assert.Contains(t, res.HTML, "<html>")
}

func TestContentTypeTable(t *testing.T) {
	assert.Equal(t, "application/json", contentTypeFor("/x/data.JSON"))
	assert.Equal(t, "image/jpeg", contentTypeFor("photo.jpeg"))
	assert.Equal(t, "application/octet-stream", contentTypeFor("binary.dat"))
	assert.Equal(t, "application/octet-stream", contentTypeFor("noext"))
}
