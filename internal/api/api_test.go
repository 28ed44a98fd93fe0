package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/skeletab/internal/annotator"
	"github.com/starford/skeletab/internal/models"
	"github.com/starford/skeletab/internal/testutil"
)

var fixture = map[string]string{
	"acme/acme_table1.csv":    "Variable,(1),(2)\nTreat,0.5,0.7\n",
	"acme/acme_table1.png":    "\x89PNG\r\n\x1a\nfake",
	"acme/data/panel.csv":     "wage,educ\n",
	"zeta/zeta_figure2_B.csv": "x\n",
}

// testEnv sets up a temp project, SQLite index, service and router.
// A non-empty authToken switches the router into token mode.
func testEnv(t *testing.T, authToken string) (*annotator.Service, http.Handler, string) {
	t.Helper()
	return testEnvWithSSE(t, authToken, nil)
}

func testEnvWithSSE(t *testing.T, authToken string, sse http.Handler) (*annotator.Service, http.Handler, string) {
	t.Helper()
	root := testutil.TestProject(t, fixture)
	svc, err := annotator.NewService(root,
		annotator.WithIndex(testutil.TestDB(t)),
		annotator.WithLogger(testutil.Logger()),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, NewRouter(svc, authToken != "", authToken, sse), root
}

func do(t *testing.T, router http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %T: %v (body %s)", v, err, w.Body.String())
	}
	return v
}

func TestConfig(t *testing.T) {
	_, router, root := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/config", nil)
	if got := decode[ConfigResponse](t, w); got.RootDir != root {
		t.Errorf("root_dir = %q, want %q", got.RootDir, root)
	}

	other := t.TempDir()
	body, _ := json.Marshal(map[string]string{"root_dir": other})
	w = do(t, router, http.MethodPost, "/config", bytes.NewReader(body))
	if w.Code != http.StatusOK {
		t.Fatalf("update config = %d, body = %s", w.Code, w.Body.String())
	}
	w = do(t, router, http.MethodGet, "/config", nil)
	if got := decode[ConfigResponse](t, w); got.RootDir != other {
		t.Errorf("root_dir after update = %q", got.RootDir)
	}

	body, _ = json.Marshal(map[string]string{"root_dir": filepath.Join(other, "missing")})
	w = do(t, router, http.MethodPost, "/config", bytes.NewReader(body))
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing dir = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodPost, "/config", bytes.NewReader([]byte(`{}`)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty root = %d, want 400", w.Code)
	}
}

func TestListProjects(t *testing.T) {
	_, router, root := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/projects", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	entries := decode[[]TableEntry](t, w)
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].PaperID != "acme" || entries[0].Status != models.StatusNotStarted {
		t.Errorf("first = %+v", entries[0])
	}
	if entries[0].ImagePath != filepath.Join(root, "acme", "acme_table1.png") {
		t.Errorf("image_path = %q", entries[0].ImagePath)
	}
	if entries[1].TableID != "figure2_B" {
		t.Errorf("second = %+v", entries[1])
	}
}

func TestListProjects_RootOverride(t *testing.T) {
	_, router, _ := testEnv(t, "")
	other := testutil.TestProject(t, map[string]string{"beta_table3.csv": "a\n"})

	w := do(t, router, http.MethodGet, "/projects?root_dir="+url.QueryEscape(other), nil)
	entries := decode[[]TableEntry](t, w)
	if len(entries) != 1 || entries[0].PaperID != "beta" {
		t.Errorf("entries = %+v", entries)
	}

	w = do(t, router, http.MethodGet, "/projects?root_dir="+url.QueryEscape(filepath.Join(other, "nope")), nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad root = %d, want 400", w.Code)
	}
}

func TestGetTable(t *testing.T) {
	_, router, _ := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/table/acme/table1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	d := decode[TableDetail](t, w)
	if d.Info.TableID != "table1" || len(d.Grid.Header) != 3 {
		t.Errorf("detail = %+v", d)
	}
	if d.Skeleton == nil || d.Skeleton.GridFile != "acme_table1.csv" {
		t.Errorf("skeleton = %+v", d.Skeleton)
	}
}

func TestGetTable_Errors(t *testing.T) {
	_, router, _ := testEnv(t, "")

	if w := do(t, router, http.MethodGet, "/table/acme/table9", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing table = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/table/acme/summary", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad identity = %d, want 400", w.Code)
	}
}

func TestSaveGrid(t *testing.T) {
	_, router, root := testEnv(t, "")

	body := `{"header":["Variable","(1)"],"rows":[["Treat","0.9"]]}`
	w := do(t, router, http.MethodPost, "/table/acme/table1/save_csv", bytes.NewReader([]byte(body)))
	if w.Code != http.StatusOK {
		t.Fatalf("save = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[SaveGridResponse](t, w)
	if !resp.OK || resp.CSVPath != filepath.Join(root, "acme", "acme_table1.csv") {
		t.Errorf("resp = %+v", resp)
	}
	data, _ := os.ReadFile(resp.CSVPath)
	if string(data) != "Variable,(1)\r\nTreat,0.9\r\n" {
		t.Errorf("written = %q", data)
	}
}

func TestSaveGrid_Invalid(t *testing.T) {
	_, router, _ := testEnv(t, "")

	cases := map[string]string{
		"not json":     `{`,
		"missing rows": `{"header":[]}`,
	}
	for name, body := range cases {
		w := do(t, router, http.MethodPost, "/table/acme/table1/save_csv", bytes.NewReader([]byte(body)))
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, w.Code)
		}
	}

	w := do(t, router, http.MethodPost, "/table/acme/table7/save_csv", bytes.NewReader([]byte(`{"header":[],"rows":[]}`)))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown table = %d, want 404", w.Code)
	}
}

func TestSaveSkeletonThenSearch(t *testing.T) {
	_, router, root := testEnv(t, "")

	body := `{"paper_id":"spoof","status":"completed","x_rows":[{"row":1,"display_label":"Treatment","data_var_name":"treated_post"}]}`
	w := do(t, router, http.MethodPost, "/table/acme/table1/save_skeleton", bytes.NewReader([]byte(body)))
	if w.Code != http.StatusOK {
		t.Fatalf("save = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[SaveSkeletonResponse](t, w)
	if resp.SkeletonPath != filepath.Join(root, "acme", "acme_table1.skeleton.json") {
		t.Errorf("skeleton_path = %q", resp.SkeletonPath)
	}

	w = do(t, router, http.MethodGet, "/table/acme/table1", nil)
	d := decode[TableDetail](t, w)
	if d.Skeleton.PaperID != "acme" || d.Skeleton.Status != models.StatusCompleted {
		t.Errorf("skeleton = %+v", d.Skeleton)
	}
	if d.Skeleton.XRows[0].Role != models.RoleKey {
		t.Errorf("role default not applied: %+v", d.Skeleton.XRows[0])
	}
	if d.Info.Status != models.StatusCompleted {
		t.Errorf("info status = %q", d.Info.Status)
	}

	w = do(t, router, http.MethodGet, "/search?q=Treatment", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d, body = %s", w.Code, w.Body.String())
	}
	sr := decode[SearchResponse](t, w)
	if len(sr.Results) != 1 || sr.Results[0].TableID != "table1" {
		t.Errorf("results = %+v", sr.Results)
	}

	w = do(t, router, http.MethodGet, "/progress", nil)
	p := decode[Progress](t, w)
	if p.Total != 1 || p.ByStatus[models.StatusCompleted] != 1 {
		t.Errorf("progress = %+v", p)
	}
}

func TestSaveSkeleton_Malformed(t *testing.T) {
	_, router, _ := testEnv(t, "")

	for _, body := range []string{`nope`, `{"y_columns":"x"}`} {
		w := do(t, router, http.MethodPost, "/table/acme/table1/save_skeleton", bytes.NewReader([]byte(body)))
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", body, w.Code)
		}
	}
}

func TestVariables(t *testing.T) {
	_, router, _ := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/table/acme/table1/variables", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	got := decode[VariablesResponse](t, w)
	if len(got.Variables) != 2 || got.Variables[0] != "educ" || got.Variables[1] != "wage" {
		t.Errorf("variables = %v", got.Variables)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	_, router, _ := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("no q = %d, want 400", w.Code)
	}
	w = do(t, router, http.MethodGet, "/search?q=x&limit=abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad limit = %d, want 400", w.Code)
	}
}

func TestSearch_IndexDisabled(t *testing.T) {
	root := testutil.TestProject(t, nil)
	svc, err := annotator.NewService(root, annotator.WithLogger(testutil.Logger()))
	if err != nil {
		t.Fatal(err)
	}
	router := NewRouter(svc, false, "", nil)
	if w := do(t, router, http.MethodGet, "/search?q=x", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("search = %d, want 503", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router, _ := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router, _ := testEnv(t, "secret123")

	if w := do(t, router, http.MethodGet, "/projects", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router, _ := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

// blockingSSE writes headers and blocks until the request context ends.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router, _ := testEnvWithSSE(t, "secret", blockingSSE)

	if w := do(t, router, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router, _ := testEnvWithSSE(t, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
}

func uploadImage(t *testing.T, router http.Handler, target string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "upload.bin")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(part, bytes.NewReader(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUploadAndServeImage(t *testing.T) {
	_, router, root := testEnv(t, "")

	if w := do(t, router, http.MethodGet, "/table/zeta/figure2_B/image", nil); w.Code != http.StatusNotFound {
		t.Errorf("image before upload = %d, want 404", w.Code)
	}

	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 'j', 'f', 'i', 'f'}
	w := uploadImage(t, router, "/table/zeta/figure2_B/image", jpeg)
	if w.Code != http.StatusOK {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[ImageUploadResponse](t, w)
	if resp.ImagePath != filepath.Join(root, "zeta", "zeta_figure2_B.jpg") || resp.Size != int64(len(jpeg)) {
		t.Errorf("resp = %+v", resp)
	}

	w = do(t, router, http.MethodGet, "/table/zeta/figure2_B/image", nil)
	if w.Code != http.StatusOK || !bytes.Equal(w.Body.Bytes(), jpeg) {
		t.Errorf("serve = %d, %d bytes", w.Code, w.Body.Len())
	}
}

func TestUploadImage_Rejected(t *testing.T) {
	_, router, _ := testEnv(t, "")

	if w := uploadImage(t, router, "/table/acme/table1/image", []byte("GIF89a")); w.Code != http.StatusBadRequest {
		t.Errorf("gif = %d, want 400", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/table/acme/table1/image", bytes.NewReader(nil))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing file = %d, want 400", w.Code)
	}
}
