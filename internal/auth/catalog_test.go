package auth

import (
	"errors"
	"slices"
	"testing"
)

func TestLookupTag(t *testing.T) {
	view, err := LookupTag(TagAdmin)
	if err != nil {
		t.Fatalf("LookupTag(ADMIN) error = %v", err)
	}
	want := TagView{Category: "Admin", Group: "Admin", Name: "Admin"}
	if view != want {
		t.Errorf("LookupTag(ADMIN) = %+v, want %+v", view, want)
	}

	if _, err := LookupTag("admin"); !errors.Is(err, ErrUnknownTag) {
		t.Errorf("LookupTag(admin) error = %v, want ErrUnknownTag", err)
	}
}

func TestCatalog_IsCopy(t *testing.T) {
	c := Catalog()
	c["INJECTED"] = TagView{Name: "Injected"}
	delete(c, TagAdmin)

	if IsKnownTag("INJECTED") {
		t.Error("mutating Catalog() result changed the registry")
	}
	if !IsKnownTag(TagAdmin) {
		t.Error("deleting from Catalog() result changed the registry")
	}
	if !slices.Equal(CatalogTags(), []PermissionTag{TagAdmin}) {
		t.Errorf("CatalogTags() = %v", CatalogTags())
	}
}
