package internal

import (
	"sort"
	"strings"
)

// branchRefPrefix marks refs that name a branch; push deliveries for tags
// carry refs/tags/ instead and keep their full ref as the branch value.
const branchRefPrefix = "refs/heads/"

// PushEvent is the subset of a GitHub push delivery this service acts on.
// Unknown payload fields are ignored by the JSON decoder, so the struct can
// stay small while GitHub keeps growing theirs.
type PushEvent struct {
	Ref        string     `json:"ref"`
	Before     string     `json:"before"`
	After      string     `json:"after"`
	Repository Repository `json:"repository"`
	Pusher     Pusher     `json:"pusher"`
	Commits    []Commit   `json:"commits"`
	HeadCommit *Commit    `json:"head_commit"`
}

// Repository identifies where the push landed.
type Repository struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Private       bool   `json:"private"`
	HTMLURL       string `json:"html_url"`
	DefaultBranch string `json:"default_branch"`
}

// Pusher is the account that performed the push.
type Pusher struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Commit carries the per-commit file lists the classifier consumes. The
// three lists may each be absent from the wire payload; a nil slice is
// equivalent to an empty one everywhere they are read.
type Commit struct {
	ID        string   `json:"id"`
	Message   string   `json:"message"`
	Timestamp string   `json:"timestamp"`
	URL       string   `json:"url"`
	Author    Pusher   `json:"author"`
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
	Modified  []string `json:"modified"`
}

// Complete reports whether the delivery carries the fields every genuine
// push has. GitHub always sends ref and repository.full_name; when either is
// missing the payload parsed but cannot be acted on.
func (e *PushEvent) Complete() bool {
	return e.Ref != "" && e.Repository.FullName != ""
}

// Branch returns the branch name for branch pushes. Non-branch refs (tags)
// are returned unchanged so the caller still sees what moved.
func (e *PushEvent) Branch() string {
	return strings.TrimPrefix(e.Ref, branchRefPrefix)
}

// ChangedFiles returns every path touched by the push: the union of the
// added, removed and modified lists across all commits, deduplicated and
// sorted. The result is a canonical set, so two deliveries describing the
// same changes compare equal regardless of commit order.
func ChangedFiles(event PushEvent) []string {
	seen := make(map[string]struct{})
	for _, commit := range event.Commits {
		for _, list := range [][]string{commit.Added, commit.Removed, commit.Modified} {
			for _, path := range list {
				seen[path] = struct{}{}
			}
		}
	}

	files := make([]string, 0, len(seen))
	for path := range seen {
		files = append(files, path)
	}
	sort.Strings(files)
	return files
}
