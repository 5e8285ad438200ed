package ingest

import "testing"

func TestGlobSet_Included(t *testing.T) {
	tests := []struct {
		name    string
		include []string
		exclude []string
		path    string
		want    bool
	}{
		{name: "no filters matches everything", path: "a/b.md", want: true},
		{name: "include star star md matches nested", include: []string{"**/*.md"}, path: "notes/a.md", want: true},
		{name: "include star star md rejects non-md", include: []string{"**/*.md"}, path: "notes/a.txt", want: false},
		{name: "exclude wins over include", include: []string{"**/*.md"}, exclude: []string{"drafts/**"}, path: "drafts/a.md", want: false},
		{name: "top level include star matches top-level file only", include: []string{"*.md"}, path: "a.md", want: true},
		{name: "top level include star rejects nested file", include: []string{"*.md"}, path: "nested/a.md", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGlobSet()
			got := g.included(tt.include, tt.exclude, tt.path)
			if got != tt.want {
				t.Errorf("included(%v, %v, %q) = %v, want %v", tt.include, tt.exclude, tt.path, got, tt.want)
			}
		})
	}
}
