package event

import "path"

// Filter admits object keys whose extension is in an allow-list.
// Matching is exact, so ".Jpg" is rejected when only ".jpg" and ".JPG" are listed.
type Filter struct {
	allowed map[string]struct{}
}

// NewFilter creates a filter for the given extensions (with leading dot).
func NewFilter(extensions []string) *Filter {
	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		allowed[ext] = struct{}{}
	}
	return &Filter{allowed: allowed}
}

// Allowed reports whether the key's extension is in the allow-list.
func (f *Filter) Allowed(key string) bool {
	ext := path.Ext(key)
	if ext == "" {
		return false
	}
	_, ok := f.allowed[ext]
	return ok
}
