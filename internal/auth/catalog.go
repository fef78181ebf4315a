package auth

import (
	"fmt"
	"maps"
	"slices"
)

// PermissionTag is an atomic capability checked by PermissionGate.
type PermissionTag string

// TagAdmin gates account administration.
const TagAdmin PermissionTag = "ADMIN"

// TagView is the presentation metadata of a tag.
type TagView struct {
	Category string `json:"category"`
	Group    string `json:"group"`
	Name     string `json:"name"`
}

// catalog is fixed at compile time. Adding a tag means adding an entry here.
var catalog = map[PermissionTag]TagView{
	TagAdmin: {Category: "Admin", Group: "Admin", Name: "Admin"},
}

// LookupTag returns the metadata registered for tag.
func LookupTag(tag PermissionTag) (TagView, error) {
	view, ok := catalog[tag]
	if !ok {
		return TagView{}, fmt.Errorf("%w: %q", ErrUnknownTag, tag)
	}
	return view, nil
}

// IsKnownTag reports whether tag is registered.
func IsKnownTag(tag PermissionTag) bool {
	_, ok := catalog[tag]
	return ok
}

// CatalogTags returns every registered tag in sorted order.
func CatalogTags() []PermissionTag {
	return slices.Sorted(maps.Keys(catalog))
}

// Catalog returns a copy of the registry.
func Catalog() map[PermissionTag]TagView {
	return maps.Clone(catalog)
}
