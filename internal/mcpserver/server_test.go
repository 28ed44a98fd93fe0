package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/skeletab/internal/annotator"
	"github.com/starford/skeletab/internal/models"
	"github.com/starford/skeletab/internal/testutil"
)

func testServer(t *testing.T) (*Server, string) {
	t.Helper()

	root := testutil.TestProject(t, map[string]string{
		"acme/acme_table1.csv": "Variable,(1)\nTreat,0.5\n",
		"acme/data/panel.csv":  "wage,educ\n",
	})
	svc, err := annotator.NewService(root,
		annotator.WithIndex(testutil.TestDB(t)),
		annotator.WithLogger(testutil.Logger()),
	)
	if err != nil {
		t.Fatal(err)
	}
	return New(svc), root
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so handlers are
	// called directly.
	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"list_tables":           srv.listTables,
		"get_table":             srv.getTable,
		"get_variables":         srv.getVariables,
		"save_skeleton":         srv.saveSkeleton,
		"save_grid":             srv.saveGrid,
		"upload_image":          srv.uploadImage,
		"search_tables":         srv.searchTables,
		"get_progress":          srv.getProgress,
		"get_skeleton_contract": srv.getSkeletonContract,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(ctx, req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func acme(extra map[string]any) map[string]any {
	args := map[string]any{"paper_id": "acme", "table_id": "table1"}
	for k, v := range extra {
		args[k] = v
	}
	return args
}

func TestListTables(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "list_tables", map[string]any{})
	var entries []models.TableEntry
	if err := json.Unmarshal([]byte(resultText(r)), &entries); err != nil {
		t.Fatalf("decode: %v (%s)", err, resultText(r))
	}
	if len(entries) != 1 || entries[0].TableID != "table1" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestGetTableMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_table", map[string]any{"paper_id": "acme", "table_id": "table4"})
	if !r.IsError {
		t.Error("expected error for missing table")
	}
	r = callTool(t, srv, "get_table", map[string]any{"paper_id": "acme"})
	if !r.IsError {
		t.Error("expected error for missing table_id")
	}
}

func TestSaveSkeletonAndGetTable(t *testing.T) {
	srv, root := testServer(t)

	r := callTool(t, srv, "save_skeleton", acme(map[string]any{
		"skeleton": `{"status":"completed","y_columns":[{"col":1,"depvar_label":"Wage"}]}`,
	}))
	if r.IsError {
		t.Fatalf("save_skeleton: %s", resultText(r))
	}
	want := "saved: " + filepath.Join(root, "acme", "acme_table1.skeleton.json")
	if resultText(r) != want {
		t.Errorf("result = %q, want %q", resultText(r), want)
	}

	r = callTool(t, srv, "get_table", acme(nil))
	var d models.TableDetail
	if err := json.Unmarshal([]byte(resultText(r)), &d); err != nil {
		t.Fatal(err)
	}
	if d.Skeleton.Status != models.StatusCompleted || len(d.Skeleton.YColumns) != 1 {
		t.Errorf("skeleton = %+v", d.Skeleton)
	}

	r = callTool(t, srv, "search_tables", map[string]any{"query": "Wage"})
	if r.IsError || !strings.Contains(resultText(r), `"table1"`) {
		t.Errorf("search = %s", resultText(r))
	}

	r = callTool(t, srv, "get_progress", map[string]any{})
	if !strings.Contains(resultText(r), `"completed": 1`) {
		t.Errorf("progress = %s", resultText(r))
	}
}

func TestSaveSkeletonMalformed(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "save_skeleton", acme(map[string]any{"skeleton": `{"x_rows": 3}`}))
	if !r.IsError {
		t.Error("expected error for malformed skeleton")
	}
}

func TestSaveGrid(t *testing.T) {
	srv, root := testServer(t)

	r := callTool(t, srv, "save_grid", acme(map[string]any{"grid": `{"header":["a"],"rows":[["1"]]}`}))
	if r.IsError {
		t.Fatalf("save_grid: %s", resultText(r))
	}
	data, _ := os.ReadFile(filepath.Join(root, "acme", "acme_table1.csv"))
	if string(data) != "a\r\n1\r\n" {
		t.Errorf("grid = %q", data)
	}

	r = callTool(t, srv, "save_grid", acme(map[string]any{"grid": `{"header":["a"]}`}))
	if !r.IsError {
		t.Error("expected error for grid without rows")
	}
}

func TestGetVariables(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_variables", acme(nil))
	if resultText(r) != "[\n  \"educ\",\n  \"wage\"\n]" {
		t.Errorf("variables = %q", resultText(r))
	}
}

func TestUploadImage_DataURI(t *testing.T) {
	srv, root := testServer(t)

	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(testutil.PNG)
	r := callTool(t, srv, "upload_image", acme(map[string]any{"url": uri}))
	if r.IsError {
		t.Fatalf("upload_image: %s", resultText(r))
	}
	var res uploadResult
	_ = json.Unmarshal([]byte(resultText(r)), &res)
	if res.SavedPath != filepath.Join(root, "acme", "acme_table1.png") {
		t.Errorf("saved = %q", res.SavedPath)
	}
}

func TestUploadImage_Rejected(t *testing.T) {
	srv, _ := testServer(t)

	cases := map[string]string{
		"gif":        "data:image/gif;base64," + base64.StdEncoding.EncodeToString([]byte("GIF89a")),
		"mismatch":   "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(testutil.PNG),
		"not base64": "data:image/png,plain",
		"loopback":   "http://127.0.0.1/table.png",
		"scheme":     "ftp://example.com/table.png",
	}
	for name, uri := range cases {
		r := callTool(t, srv, "upload_image", acme(map[string]any{"url": uri}))
		if !r.IsError {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestUploadImage_AnyResolvedLoopbackBlocked(t *testing.T) {
	orig := lookupIP
	t.Cleanup(func() { lookupIP = orig })
	lookupIP = func(host string) ([]net.IP, error) {
		if host == "mixed.example" {
			return []net.IP{net.ParseIP("93.184.216.34"), net.ParseIP("127.0.0.1")}, nil
		}
		return []net.IP{net.ParseIP("93.184.216.34")}, nil
	}

	if err := checkBlockedHost("mixed.example"); err == nil {
		t.Error("host with a loopback address among its answers should be blocked")
	}
	if err := checkBlockedHost("public.example"); err != nil {
		t.Errorf("public host blocked: %v", err)
	}

	srv, _ := testServer(t)
	r := callTool(t, srv, "upload_image", acme(map[string]any{"url": "http://mixed.example/table.png"}))
	if !r.IsError || !strings.Contains(resultText(r), "loopback") {
		t.Errorf("upload should be refused, got %q", resultText(r))
	}
}

func TestSkeletonContract(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_skeleton_contract", nil)
	if !strings.Contains(resultText(r), "bracket_type_default") {
		t.Error("contract missing bracket_type_default")
	}

	contents, err := srv.readSkeletonFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(contents) != 1 {
		t.Fatalf("resource = %v, %v", contents, err)
	}
	if tc, ok := contents[0].(mcp.TextResourceContents); !ok || tc.URI != formatURI {
		t.Errorf("resource contents = %+v", contents[0])
	}
}
