package content

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFragment() Fragment {
	return Fragment{
		Title:   "Cells",
		Reading: "Cells are the basic unit of life.",
		Slides: []SlideContent{
			{Title: "What is a cell?", Body: "- membrane\n- nucleus"},
			{Title: "Second", Body: "unused"},
		},
		StudyAids: []StudyAidItem{{Prompt: "Name two organelles", Answer: "nucleus, ribosome"}},
	}
}

func mustSet(t *testing.T, cats ...Category) CategorySet {
	t.Helper()
	s, err := NewCategorySet(cats...)
	require.NoError(t, err)
	return s
}

func TestFilterSlideOnly(t *testing.T) {
	got := Filter(sampleFragment(), mustSet(t, Slide))

	require.NotNil(t, got.Slide)
	assert.Equal(t, "What is a cell?", got.Slide.Title)
	assert.Equal(t, "- membrane\n- nucleus", got.Slide.Body)
	assert.False(t, got.Slide.Fallback)
	assert.Nil(t, got.Reading)
	assert.Nil(t, got.StudyAids)
	assert.Nil(t, got.Notes)
}

func TestFilterDisjointSets(t *testing.T) {
	f := sampleFragment()
	tests := []struct {
		name string
		cats CategorySet
	}{
		{"slide", mustSet(t, Slide)},
		{"reading", mustSet(t, Reading)},
		{"aids", mustSet(t, StudyAid)},
		{"notes", mustSet(t, Notes)},
		{"reading+aids", mustSet(t, Reading, StudyAid)},
		{"slide+notes", mustSet(t, Slide, Notes)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filter(f, tt.cats)
			assert.Equal(t, tt.cats.Has(Reading), got.Reading != nil, "reading")
			assert.Equal(t, tt.cats.Has(Slide), got.Slide != nil, "slide")
			assert.Equal(t, tt.cats.Has(StudyAid), got.StudyAids != nil, "aids")
			assert.Equal(t, tt.cats.Has(Notes), got.Notes != nil, "notes")
		})
	}
}

func TestFilterEmptySetSharesNothing(t *testing.T) {
	got := Filter(sampleFragment(), nil)
	assert.False(t, got.Shared())
	assert.Equal(t, "Cells", got.Title)
}

func TestFilterFallbacks(t *testing.T) {
	empty := Fragment{Title: "Intro"}
	got := Filter(empty, mustSet(t, Reading, Slide, StudyAid, Notes))

	require.NotNil(t, got.Slide)
	assert.True(t, got.Slide.Fallback)
	assert.Equal(t, NoSlideText, got.Slide.Body)

	require.NotNil(t, got.Reading)
	assert.True(t, got.Reading.Fallback)
	assert.Equal(t, NoReadingText, got.Reading.Body)

	require.NotNil(t, got.StudyAids)
	assert.Equal(t, NoStudyAidText, got.StudyAids.Body)

	require.NotNil(t, got.Notes)
	assert.Equal(t, NotesText, got.Notes.Body)
}

func TestPrimarySlideFallsBackToVideo(t *testing.T) {
	f := Fragment{Title: "Demo", Videos: []Video{{Title: "Mitosis", URL: "https://example.com/v.mp4"}}}
	b := PrimarySlide(f)
	assert.True(t, b.Fallback)
	assert.Equal(t, "Mitosis", b.Title)
	assert.Contains(t, b.Body, "https://example.com/v.mp4")
}

func TestFilterDoesNotMutateInput(t *testing.T) {
	f := sampleFragment()
	_ = Filter(f, mustSet(t, Slide, Reading, StudyAid))
	assert.Equal(t, sampleFragment(), f)
}

func TestStudyAidMarkdown(t *testing.T) {
	got := Filter(sampleFragment(), mustSet(t, StudyAid))
	require.NotNil(t, got.StudyAids)
	assert.Equal(t, "1. **Name two organelles**\n   nucleus, ribosome", got.StudyAids.Body)
}

func TestMarkdownOrder(t *testing.T) {
	got := Filter(sampleFragment(), mustSet(t, Reading, Slide))
	md := got.Markdown()
	assert.Less(t, strings.Index(md, "What is a cell?"), strings.Index(md, "basic unit of life"))
}
