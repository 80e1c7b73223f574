package service

import (
	"testing"
	"time"

	"github.com/shinyes/vidstore/internal/models"
)

func TestCompileEntryFilterEmpty(t *testing.T) {
	filter, err := CompileEntryFilter("   ")
	if err != nil {
		t.Fatalf("CompileEntryFilter() error = %v", err)
	}
	if filter != nil {
		t.Fatalf("expected nil filter for empty expression")
	}
	ok, err := filter.Matches(models.FileEntry{})
	if err != nil || !ok {
		t.Fatalf("nil filter should match everything, got %v, %v", ok, err)
	}
}

func TestCompileEntryFilterInvalid(t *testing.T) {
	if _, err := CompileEntryFilter(`unknown_field == 1`); err == nil {
		t.Fatalf("expected undeclared variable to fail")
	}
	if _, err := CompileEntryFilter(`path ==`); err == nil {
		t.Fatalf("expected syntax error")
	}
}

func TestEntryFilterMatches(t *testing.T) {
	entry := models.FileEntry{
		Path:        "videos/clip.mp4",
		Size:        2048,
		ContentType: "video/mp4",
		SourceURL:   "https://cdn.example/clip.mp4",
		StorageType: "LOCAL",
		CreateTime:  time.Unix(1700000000, 0),
		UpdateTime:  time.Unix(1700000100, 0),
	}

	tests := []struct {
		expr string
		want bool
	}{
		{`name == "clip.mp4"`, true},
		{`size_bytes >= 2048 && content_type == "video/mp4"`, true},
		{`source_url.startsWith("https://cdn.example/")`, true},
		{`update_time > create_time`, true},
		{`storage_type == "S3"`, false},
		{`path in ["videos/a.mp4", "videos/b.mp4"]`, false},
	}
	for _, tt := range tests {
		filter, err := CompileEntryFilter(tt.expr)
		if err != nil {
			t.Fatalf("CompileEntryFilter(%s) error = %v", tt.expr, err)
		}
		got, err := filter.Matches(entry)
		if err != nil {
			t.Fatalf("Matches(%s) error = %v", tt.expr, err)
		}
		if got != tt.want {
			t.Fatalf("Matches(%s) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestEntryFilterNonBoolResult(t *testing.T) {
	filter, err := CompileEntryFilter(`size_bytes + 1`)
	if err != nil {
		t.Fatalf("CompileEntryFilter() error = %v", err)
	}
	if _, err := filter.Matches(models.FileEntry{Size: 1}); err == nil {
		t.Fatalf("expected non-bool result to fail")
	}
}

func TestEntryFilterSQLPrefilter(t *testing.T) {
	filter, err := CompileEntryFilter(`content_type in ["video/mp4", "video/webm"] && path == "videos/a.mp4"`)
	if err != nil {
		t.Fatalf("CompileEntryFilter() error = %v", err)
	}
	pf := filter.SQLPrefilter()
	if pf.Unsatisfiable {
		t.Fatalf("expected satisfiable prefilter")
	}
	if len(pf.ContentTypes) != 2 || len(pf.Paths) != 1 || pf.Paths[0] != "videos/a.mp4" {
		t.Fatalf("unexpected prefilter: %+v", pf)
	}
}

func TestEntryFilterSQLPrefilterUnsatisfiable(t *testing.T) {
	filter, err := CompileEntryFilter(`content_type == "video/mp4" && content_type == "video/webm"`)
	if err != nil {
		t.Fatalf("CompileEntryFilter() error = %v", err)
	}
	if !filter.SQLPrefilter().Unsatisfiable {
		t.Fatalf("expected unsatisfiable prefilter")
	}
}

func TestEntryFilterSQLPrefilterOR(t *testing.T) {
	filter, err := CompileEntryFilter(`content_type == "video/mp4" || content_type == "video/webm"`)
	if err != nil {
		t.Fatalf("CompileEntryFilter() error = %v", err)
	}
	if got := filter.SQLPrefilter().ContentTypes; len(got) != 2 {
		t.Fatalf("expected union of content types, got %+v", got)
	}

	mixed, err := CompileEntryFilter(`content_type == "video/mp4" || size_bytes > 10`)
	if err != nil {
		t.Fatalf("CompileEntryFilter() error = %v", err)
	}
	pf := mixed.SQLPrefilter()
	if len(pf.ContentTypes) != 0 || len(pf.Paths) != 0 || pf.Unsatisfiable {
		t.Fatalf("expected OR with unconstrained side to widen, got %+v", pf)
	}
}
