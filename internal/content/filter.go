package content

import (
	"fmt"
	"strings"
)

// Default bodies used when a shared category has nothing to show.
const (
	NoSlideText    = "_No slide for this section._"
	NoReadingText  = "_No reading material for this section._"
	NoStudyAidText = "_No study aids for this section._"
	NotesText      = "_Notes are taken on your own device._"
)

// Block is a renderable chunk of markdown. Fallback marks blocks synthesized
// because the fragment had no content for the category.
type Block struct {
	Title    string `json:"title,omitempty"`
	Body     string `json:"body"`
	Fallback bool   `json:"fallback,omitempty"`
}

// PartialFragment is the subset of a fragment a surface may render. A nil
// field means the category was not shared, which is distinct from a shared
// category with empty content (a fallback block).
type PartialFragment struct {
	Title     string `json:"title"`
	Reading   *Block `json:"reading,omitempty"`
	Slide     *Block `json:"slide,omitempty"`
	StudyAids *Block `json:"studyAids,omitempty"`
	Notes     *Block `json:"notes,omitempty"`
}

// Filter returns the parts of f permitted by categories. It never fails and
// never modifies f.
func Filter(f Fragment, categories CategorySet) PartialFragment {
	out := PartialFragment{Title: f.Title}
	if categories.Has(Reading) {
		out.Reading = readingBlock(f)
	}
	if categories.Has(Slide) {
		b := PrimarySlide(f)
		out.Slide = &b
	}
	if categories.Has(StudyAid) {
		out.StudyAids = studyAidBlock(f)
	}
	if categories.Has(Notes) {
		out.Notes = &Block{Title: "Notes", Body: NotesText, Fallback: true}
	}
	return out
}

// PrimarySlide returns the block a slide surface shows for f: the first slide,
// else a reference to the first video, else a placeholder.
func PrimarySlide(f Fragment) Block {
	if len(f.Slides) > 0 {
		s := f.Slides[0]
		return Block{Title: s.Title, Body: s.Body}
	}
	if len(f.Videos) > 0 {
		v := f.Videos[0]
		return Block{
			Title:    v.Title,
			Body:     fmt.Sprintf("▶ [%s](%s)", videoLabel(v), v.URL),
			Fallback: true,
		}
	}
	return Block{Title: f.Title, Body: NoSlideText, Fallback: true}
}

func readingBlock(f Fragment) *Block {
	if strings.TrimSpace(f.Reading) == "" {
		return &Block{Title: f.Title, Body: NoReadingText, Fallback: true}
	}
	return &Block{Title: f.Title, Body: f.Reading}
}

func studyAidBlock(f Fragment) *Block {
	if len(f.StudyAids) == 0 {
		return &Block{Title: "Study aids", Body: NoStudyAidText, Fallback: true}
	}
	var b strings.Builder
	for i, a := range f.StudyAids {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. **%s**", i+1, a.Prompt)
		if a.Answer != "" {
			fmt.Fprintf(&b, "\n   %s", a.Answer)
		}
	}
	return &Block{Title: "Study aids", Body: b.String()}
}

func videoLabel(v Video) string {
	if v.Title != "" {
		return v.Title
	}
	return "Video"
}

// Shared reports whether any category produced a block.
func (p PartialFragment) Shared() bool {
	return p.Reading != nil || p.Slide != nil || p.StudyAids != nil || p.Notes != nil
}

// Markdown joins the shared blocks into one markdown document in category order.
func (p PartialFragment) Markdown() string {
	var parts []string
	for _, b := range []*Block{p.Slide, p.Reading, p.StudyAids, p.Notes} {
		if b == nil {
			continue
		}
		if b.Title != "" {
			parts = append(parts, "## "+b.Title+"\n\n"+b.Body)
		} else {
			parts = append(parts, b.Body)
		}
	}
	return strings.Join(parts, "\n\n---\n\n")
}
