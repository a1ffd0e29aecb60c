package content

import (
	"fmt"
	"sort"
	"strings"
)

// Category is one of the content kinds a display surface can be allowed to show.
type Category string

const (
	Reading  Category = "reading"
	Slide    Category = "slide"
	StudyAid Category = "aids"
	Notes    Category = "notes"
)

// AllCategories lists every category in display order.
var AllCategories = []Category{Reading, Slide, StudyAid, Notes}

var categoryOrder = map[Category]int{
	Reading:  0,
	Slide:    1,
	StudyAid: 2,
	Notes:    3,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := categoryOrder[c]
	return ok
}

// CategorySet is an ordered, duplicate-free set of categories.
type CategorySet []Category

// NewCategorySet normalizes cats into display order and drops duplicates.
// Unknown categories are rejected.
func NewCategorySet(cats ...Category) (CategorySet, error) {
	seen := make(map[Category]bool, len(cats))
	set := make(CategorySet, 0, len(cats))
	for _, c := range cats {
		if !c.Valid() {
			return nil, fmt.Errorf("unknown category %q", string(c))
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		set = append(set, c)
	}
	sort.Slice(set, func(i, j int) bool { return categoryOrder[set[i]] < categoryOrder[set[j]] })
	return set, nil
}

// ParseCategories parses a comma-separated list such as "reading,slide".
// Blank entries are ignored; an empty string yields an empty set.
func ParseCategories(s string) (CategorySet, error) {
	var cats []Category
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		cats = append(cats, Category(part))
	}
	return NewCategorySet(cats...)
}

// CategoriesFromStrings converts a stored string slice into a set.
func CategoriesFromStrings(names []string) (CategorySet, error) {
	cats := make([]Category, len(names))
	for i, n := range names {
		cats[i] = Category(n)
	}
	return NewCategorySet(cats...)
}

func (s CategorySet) Has(c Category) bool {
	for _, x := range s {
		if x == c {
			return true
		}
	}
	return false
}

func (s CategorySet) Empty() bool { return len(s) == 0 }

func (s CategorySet) Strings() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = string(c)
	}
	return out
}

// String renders the set in the comma-separated URL form.
func (s CategorySet) String() string {
	return strings.Join(s.Strings(), ",")
}
