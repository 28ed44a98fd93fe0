package annotator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/starford/skeletab/internal/apperr"
	"github.com/starford/skeletab/internal/index"
	"github.com/starford/skeletab/internal/models"
	"github.com/starford/skeletab/internal/testutil"
)

var ctx = context.Background()

func newService(t *testing.T, files map[string]string, opts ...Option) (*Service, string) {
	t.Helper()
	root := testutil.TestProject(t, files)
	opts = append([]Option{WithLogger(testutil.Logger())}, opts...)
	s, err := NewService(root, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return s, root
}

func TestNewService_InvalidRoot(t *testing.T) {
	_, err := NewService(filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, apperr.ErrInvalidRoot) {
		t.Errorf("err = %v, want ErrInvalidRoot", err)
	}
}

func TestResolveRoot(t *testing.T) {
	s, root := newService(t, nil)
	if got, _ := s.ResolveRoot(""); got != root {
		t.Errorf("default root = %q, want %q", got, root)
	}
	other := t.TempDir()
	if got, err := s.ResolveRoot(other); err != nil || got != other {
		t.Errorf("ResolveRoot(other) = %q, %v", got, err)
	}
	if _, err := s.ResolveRoot(filepath.Join(other, "nope")); !errors.Is(err, apperr.ErrInvalidRoot) {
		t.Errorf("err = %v, want ErrInvalidRoot", err)
	}

	if _, err := s.SetRoot(other); err != nil {
		t.Fatal(err)
	}
	if s.Root() != other {
		t.Errorf("Root after SetRoot = %q", s.Root())
	}
}

func TestGetTable_DefaultSkeleton(t *testing.T) {
	s, root := newService(t, map[string]string{
		"acme/acme_table1.csv": "Variable,(1)\nTreat,0.5\n",
		"acme/acme_table1.png": "png",
	})

	d, err := s.GetTable(ctx, "", "acme", "table1")
	if err != nil {
		t.Fatalf("GetTable: %v", err)
	}
	if d.Info.Status != models.StatusNotStarted {
		t.Errorf("info status = %q", d.Info.Status)
	}
	if d.Info.ImagePath != filepath.Join(root, "acme", "acme_table1.png") {
		t.Errorf("image = %q", d.Info.ImagePath)
	}
	if !reflect.DeepEqual(d.Grid.Header, []string{"Variable", "(1)"}) || len(d.Grid.Rows) != 1 {
		t.Errorf("grid = %+v", d.Grid)
	}
	if d.Skeleton.Status != models.StatusInProgress || d.Skeleton.GridFile != "acme_table1.csv" {
		t.Errorf("skeleton = %+v", d.Skeleton)
	}
}

func TestGetTable_Errors(t *testing.T) {
	s, _ := newService(t, map[string]string{"acme_table1.csv": "a\n"})

	if _, err := s.GetTable(ctx, "", "acme", "table9"); !errors.Is(err, apperr.ErrArtifactNotFound) {
		t.Errorf("missing table err = %v", err)
	}
	if _, err := s.GetTable(ctx, "", "acme", "summary"); !errors.Is(err, apperr.ErrUnparseableIdentity) {
		t.Errorf("bad identity err = %v", err)
	}
	if _, err := s.GetTable(ctx, "/definitely/not/here", "acme", "table1"); !errors.Is(err, apperr.ErrInvalidRoot) {
		t.Errorf("bad root err = %v", err)
	}
}

func TestSaveSkeletonThenList(t *testing.T) {
	db := testutil.TestDB(t)
	var mu sync.Mutex
	var events []string
	s, root := newService(t, map[string]string{"acme_table1.csv": "a\n"},
		WithIndex(db),
		WithChangeCallback(func(kind string, id models.Identity) {
			mu.Lock()
			events = append(events, kind+":"+id.TableID)
			mu.Unlock()
		}))

	sk := &models.Skeleton{PaperID: "spoofed", TableID: "table99", Status: models.StatusCompleted}
	path, err := s.SaveSkeleton(ctx, "", "acme", "table1", sk)
	if err != nil {
		t.Fatalf("SaveSkeleton: %v", err)
	}
	if path != filepath.Join(root, "acme_table1.skeleton.json") {
		t.Errorf("path = %q", path)
	}
	if sk.PaperID != "acme" || sk.TableID != "table1" {
		t.Errorf("identity not re-derived: %+v", sk.Identity())
	}

	entries, err := s.ListTables(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Status != models.StatusCompleted {
		t.Errorf("entries = %+v", entries)
	}

	row, err := db.GetTable(models.Identity{PaperID: "acme", TableID: "table1"})
	if err != nil || row.Status != models.StatusCompleted {
		t.Errorf("index row = %+v, %v", row, err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 || events[0] != index.KindCreated+":table1" {
		t.Errorf("events = %v", events)
	}
}

func TestSaveGrid(t *testing.T) {
	s, root := newService(t, map[string]string{"p/acme_table1.csv": "old\n"})

	path, err := s.SaveGrid(ctx, "", "acme", "table1", &models.Grid{Header: []string{"a", "b"}, Rows: [][]string{{"1", "2"}}})
	if err != nil {
		t.Fatalf("SaveGrid: %v", err)
	}
	if path != filepath.Join(root, "p", "acme_table1.csv") {
		t.Errorf("path = %q", path)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "a,b\r\n1,2\r\n" {
		t.Errorf("written = %q", data)
	}

	if _, err := s.SaveGrid(ctx, "", "acme", "table2", &models.Grid{}); !errors.Is(err, apperr.ErrArtifactNotFound) {
		t.Errorf("save to unknown table err = %v", err)
	}
}

func TestImagePathAndUpload(t *testing.T) {
	s, root := newService(t, map[string]string{"acme_table1_A.csv": "a\n"})

	if _, err := s.ImagePath(ctx, "", "acme", "table1_A"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	if _, err := s.UploadImage(ctx, "", "acme", "table1_A", []byte("GIF89a")); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("gif upload err = %v, want ErrInvalidInput", err)
	}

	path, err := s.UploadImage(ctx, "", "acme", "table1_A", testutil.PNG)
	if err != nil {
		t.Fatalf("UploadImage: %v", err)
	}
	if path != filepath.Join(root, "acme_table1_A.png") {
		t.Errorf("upload path = %q", path)
	}
	got, err := s.ImagePath(ctx, "", "acme", "table1_A")
	if err != nil || got != path {
		t.Errorf("ImagePath = %q, %v", got, err)
	}
}

func TestUploadImage_ReplacesOtherExtension(t *testing.T) {
	s, root := newService(t, map[string]string{
		"acme/acme_table1.csv":  "a\n",
		"acme/acme_table1.png":  "old png",
		"acme/acme_table1.jpeg": "old jpeg",
	})
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 'n', 'e', 'w'}

	path, err := s.UploadImage(ctx, "", "acme", "table1", jpeg)
	if err != nil {
		t.Fatalf("UploadImage: %v", err)
	}
	want := filepath.Join(root, "acme", "acme_table1.jpg")
	if path != want {
		t.Errorf("upload path = %q, want %q", path, want)
	}
	got, err := s.ImagePath(ctx, "", "acme", "table1")
	if err != nil || got != want {
		t.Errorf("ImagePath = %q, %v, want %q", got, err, want)
	}
	for _, stale := range []string{"acme_table1.png", "acme_table1.jpeg"} {
		if _, err := os.Stat(filepath.Join(root, "acme", stale)); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s should have been removed, stat err = %v", stale, err)
		}
	}
}

func TestImageExt(t *testing.T) {
	cases := []struct {
		data []byte
		ext  string
	}{
		{testutil.PNG, ".png"},
		{[]byte{0xFF, 0xD8, 0xFF, 0xE0}, ".jpg"},
	}
	for _, c := range cases {
		if got, err := ImageExt(c.data); err != nil || got != c.ext {
			t.Errorf("ImageExt = %q, %v, want %q", got, err, c.ext)
		}
	}
	if _, err := ImageExt(nil); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("empty data err = %v", err)
	}
}

func TestVariables_PaperDir(t *testing.T) {
	s, _ := newService(t, map[string]string{
		"acme/tables/acme_table1.csv": "Variable,(1)\n",
		"acme/data/panel.csv":         "wage,educ\n",
		"other/data.csv":              "ignored\n",
	})
	got, err := s.Variables(ctx, "", "acme", "table1")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"educ", "wage"}) {
		t.Errorf("variables = %v", got)
	}
}

func TestVariables_FallsBackToGridDir(t *testing.T) {
	s, _ := newService(t, map[string]string{
		"flat/acme_table1.csv": "Variable,(1)\n",
		"flat/data.csv":        "firm_id\n",
	})
	got, err := s.Variables(ctx, "", "acme", "table1")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"firm_id"}) {
		t.Errorf("variables = %v", got)
	}
}

func TestSearchProgress_NoIndex(t *testing.T) {
	s, _ := newService(t, nil)
	if _, err := s.Search(ctx, "x", 10); !errors.Is(err, apperr.ErrIndexDisabled) {
		t.Errorf("Search err = %v", err)
	}
	if _, err := s.Progress(ctx); !errors.Is(err, apperr.ErrIndexDisabled) {
		t.Errorf("Progress err = %v", err)
	}
}

func TestSaveUnderOtherRootSkipsIndex(t *testing.T) {
	db := testutil.TestDB(t)
	s, _ := newService(t, nil, WithIndex(db))
	other := testutil.TestProject(t, map[string]string{"acme_table1.csv": "a\n"})

	if _, err := s.SaveSkeleton(ctx, other, "acme", "table1", &models.Skeleton{}); err != nil {
		t.Fatal(err)
	}
	p, err := s.Progress(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if p.Total != 0 {
		t.Errorf("index should only track the default root, got %+v", p)
	}
}

func TestDecodeSkeleton(t *testing.T) {
	s, _ := newService(t, nil)
	sk, err := s.DecodeSkeleton([]byte(`{"x_rows":[{"row":2}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if sk.Status != models.StatusInProgress || sk.XRows[0].Role != models.RoleKey {
		t.Errorf("defaults not applied: %+v", sk)
	}
	if _, err := s.DecodeSkeleton([]byte(`{"y_columns":"nope"}`)); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}
