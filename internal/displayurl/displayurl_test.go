package displayurl

import (
	"testing"

	"github.com/lessoncast/lessoncast/internal/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		mode Mode
		want Params
	}{
		{
			name: "awaiting",
			raw:  "http://h/display",
			mode: ModeAwaiting,
		},
		{
			name: "direct",
			raw:  "http://h/display?lesson=L1&fragment=3&type=reading,slide",
			mode: ModeDirect,
			want: Params{LessonID: "L1", FragmentIndex: 3, Categories: content.CategorySet{content.Reading, content.Slide}},
		},
		{
			name: "direct default type",
			raw:  "http://h/display?lesson=L1",
			mode: ModeDirect,
			want: Params{LessonID: "L1", Categories: content.CategorySet{content.Slide}},
		},
		{
			name: "session ignores lesson params",
			raw:  "http://h/display?session=S1&lesson=L1&fragment=4&type=notes",
			mode: ModeSession,
			want: Params{SessionID: "S1"},
		},
		{
			name: "window channel",
			raw:  "/display?lesson=L2&fragment=0&type=slide&channel=C9",
			mode: ModeDirect,
			want: Params{LessonID: "L2", Categories: content.CategorySet{content.Slide}, Channel: "C9"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.mode, got.Mode())
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, raw := range []string{
		"http://h/display?lesson=L1&fragment=x",
		"http://h/display?lesson=L1&fragment=-2",
		"http://h/display?lesson=L1&type=video",
	} {
		_, err := Parse(raw)
		assert.Error(t, err, raw)
	}
}

func TestURLRoundTrip(t *testing.T) {
	p := Params{LessonID: "L1", FragmentIndex: 2, Categories: content.CategorySet{content.Slide, content.StudyAid}, Channel: "C1"}
	link := p.URL("http://localhost:8080/")
	assert.Equal(t, "http://localhost:8080/display?channel=C1&fragment=2&lesson=L1&type=slide%2Caids", link)

	back, err := Parse(link)
	require.NoError(t, err)
	assert.Equal(t, p, back)

	base, err := Base(link)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", base)
}

func TestSessionLink(t *testing.T) {
	link := SessionLink("https://cast.example.com", "01J0")
	assert.Equal(t, "https://cast.example.com/display?session=01J0", link)

	p, err := Parse(link)
	require.NoError(t, err)
	assert.Equal(t, ModeSession, p.Mode())
	assert.Equal(t, "01J0", p.SessionID)
}

func TestBaseRequiresHost(t *testing.T) {
	_, err := Base("/display?session=x")
	assert.Error(t, err)
}
