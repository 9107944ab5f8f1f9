package internal

import "testing"

// TestFlattenPushShape flattens a push-like payload and spot-checks the
// dotted keys the rule engine addresses.
func TestFlattenPushShape(t *testing.T) {
	input := map[string]interface{}{
		"ref": "refs/heads/main",
		"repository": map[string]interface{}{
			"full_name": "acme/site",
			"private":   false,
		},
		"commits": []interface{}{
			map[string]interface{}{"id": "c1", "added": []interface{}{"index.html"}},
			map[string]interface{}{"id": "c2", "added": []interface{}{}},
		},
	}

	flat := Flatten(input)

	if flat["ref"] != "refs/heads/main" {
		t.Fatalf("ref = %v, want refs/heads/main", flat["ref"])
	}
	if flat["repository.full_name"] != "acme/site" {
		t.Fatalf("repository.full_name = %v, want acme/site", flat["repository.full_name"])
	}
	if flat["repository.private"] != false {
		t.Fatalf("repository.private = %v, want false", flat["repository.private"])
	}
	if _, ok := flat["commits[]"]; !ok {
		t.Fatal("commits[] missing from flattened map")
	}
	if flat["commits[0].id"] != "c1" {
		t.Fatalf("commits[0].id = %v, want c1", flat["commits[0].id"])
	}
	if flat["commits[0].added[0]"] != "index.html" {
		t.Fatalf("commits[0].added[0] = %v, want index.html", flat["commits[0].added[0]"])
	}
}

// TestFlattenScalarsAndEmpty covers the trivial shapes.
func TestFlattenScalarsAndEmpty(t *testing.T) {
	if got := Flatten(map[string]interface{}{}); len(got) != 0 {
		t.Fatalf("Flatten(empty) = %v, want empty", got)
	}

	flat := Flatten(map[string]interface{}{"deleted": true, "after": "59b20b8"})
	if flat["deleted"] != true || flat["after"] != "59b20b8" {
		t.Fatalf("scalars not passed through: %v", flat)
	}
}
