package internal

import "strings"

// Interest records which watched file categories a push touched. The flags
// are independent; one path can set several of them at once.
type Interest struct {
	FrontendAsset      bool `json:"frontend_asset"`
	DependencyManifest bool `json:"dependency_manifest"`
	ConfigFile         bool `json:"config_file"`
	ContainerFile      bool `json:"container_file"`
}

// Any reports whether at least one category matched.
func (i Interest) Any() bool {
	return i.FrontendAsset || i.DependencyManifest || i.ConfigFile || i.ContainerFile
}

// ClassifyInterest scans the changed paths for the watched categories. Each
// flag is an independent substring test; matching is case-sensitive except
// for the dockerfile check, where GitHub repos show every capitalization in
// the wild.
func ClassifyInterest(paths []string) Interest {
	var interest Interest
	for _, path := range paths {
		if strings.Contains(path, "index.html") {
			interest.FrontendAsset = true
		}
		if strings.Contains(path, "package.json") {
			interest.DependencyManifest = true
		}
		if strings.Contains(path, ".env") ||
			strings.Contains(path, "config.") ||
			strings.Contains(path, ".yml") ||
			strings.Contains(path, ".yaml") {
			interest.ConfigFile = true
		}
		if strings.Contains(strings.ToLower(path), "dockerfile") ||
			strings.Contains(path, "docker-compose") {
			interest.ContainerFile = true
		}
	}
	return interest
}
