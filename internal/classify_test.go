package internal

import (
	"reflect"
	"testing"
)

// TestChangedFilesUnion checks the three per-commit lists collapse into one
// sorted, deduplicated set.
func TestChangedFilesUnion(t *testing.T) {
	event := PushEvent{
		Commits: []Commit{
			{Added: []string{"index.html"}, Modified: []string{"src/app.js"}},
			{Modified: []string{"src/app.js", "README.md"}, Removed: []string{"old/legacy.txt"}},
			{Added: []string{"README.md"}},
		},
	}

	got := ChangedFiles(event)
	want := []string{"README.md", "index.html", "old/legacy.txt", "src/app.js"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ChangedFiles = %v, want %v", got, want)
	}
}

// TestChangedFilesOrderIndependent permutes the commit list and expects the
// identical set back.
func TestChangedFilesOrderIndependent(t *testing.T) {
	a := Commit{Added: []string{"a.txt"}, Removed: []string{"b.txt"}}
	b := Commit{Modified: []string{"c.txt", "a.txt"}}

	forward := ChangedFiles(PushEvent{Commits: []Commit{a, b}})
	reversed := ChangedFiles(PushEvent{Commits: []Commit{b, a}})
	if !reflect.DeepEqual(forward, reversed) {
		t.Fatalf("commit order changed the result: %v vs %v", forward, reversed)
	}
}

// TestChangedFilesToleratesSparseCommits covers commits with absent lists and
// pushes with no commits at all.
func TestChangedFilesToleratesSparseCommits(t *testing.T) {
	event := PushEvent{
		Commits: []Commit{
			{},
			{Added: []string{"only.txt"}},
			{Added: nil, Modified: nil, Removed: nil},
		},
	}
	if got, want := ChangedFiles(event), []string{"only.txt"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("ChangedFiles = %v, want %v", got, want)
	}

	if got := ChangedFiles(PushEvent{}); len(got) != 0 {
		t.Fatalf("ChangedFiles of empty push = %v, want empty", got)
	}
}

// TestClassifyInterest walks each category through representative hits and a
// near miss.
func TestClassifyInterest(t *testing.T) {
	cases := []struct {
		name  string
		paths []string
		want  Interest
	}{
		{
			name:  "empty input",
			paths: nil,
			want:  Interest{},
		},
		{
			name:  "frontend asset anywhere in path",
			paths: []string{"public/index.html"},
			want:  Interest{FrontendAsset: true},
		},
		{
			name:  "dependency manifest",
			paths: []string{"services/api/package.json"},
			want:  Interest{DependencyManifest: true},
		},
		{
			name:  "env file",
			paths: []string{".env.production"},
			want:  Interest{ConfigFile: true},
		},
		{
			name:  "config dot prefix",
			paths: []string{"app/config.dev.json"},
			want:  Interest{ConfigFile: true},
		},
		{
			name:  "yaml extensions",
			paths: []string{"deploy/app.yaml", "ci.yml"},
			want:  Interest{ConfigFile: true},
		},
		{
			name:  "dockerfile is case-insensitive",
			paths: []string{"Dockerfile.prod"},
			want:  Interest{ContainerFile: true},
		},
		{
			name:  "uppercase dockerfile variants",
			paths: []string{"build/DOCKERFILE"},
			want:  Interest{ContainerFile: true},
		},
		{
			name:  "compose is case-sensitive",
			paths: []string{"Docker-Compose.yml"},
			want:  Interest{ConfigFile: true},
		},
		{
			name:  "one path, two flags",
			paths: []string{"dockerfile-compose.yml"},
			want:  Interest{ConfigFile: true, ContainerFile: true},
		},
		{
			name:  "unrelated source files",
			paths: []string{"src/main.go", "docs/notes.md", "envelope.txt"},
			want:  Interest{},
		},
		{
			name:  "everything at once",
			paths: []string{"index.html", "package.json", ".env", "Dockerfile"},
			want:  Interest{FrontendAsset: true, DependencyManifest: true, ConfigFile: true, ContainerFile: true},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyInterest(tc.paths)
			if got != tc.want {
				t.Fatalf("ClassifyInterest(%v) = %+v, want %+v", tc.paths, got, tc.want)
			}
			// Pure function: a second pass over the same input agrees.
			if again := ClassifyInterest(tc.paths); again != got {
				t.Fatalf("second call disagreed: %+v vs %+v", again, got)
			}
		})
	}
}

// TestInterestAny checks the helper the rule engine and log lines rely on.
func TestInterestAny(t *testing.T) {
	if (Interest{}).Any() {
		t.Fatal("zero Interest reported Any() = true")
	}
	if !(Interest{ConfigFile: true}).Any() {
		t.Fatal("single-flag Interest reported Any() = false")
	}
}
