package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTMLToText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "  Hello   world ", "Hello world"},
		{"markup", "<p>Hello <b>world</b></p><p>Second</p>", "Hello world\nSecond"},
		{"escaped", "&lt;p&gt;Fish &amp;amp; chips&lt;/p&gt;", "Fish & chips"},
		{"line breaks", "one<br>two<br/>three", "one\ntwo\nthree"},
		{"scripts dropped", "<p>Visible</p><script>alert(1)</script><style>p{}</style>", "Visible"},
		{"list", "<ul><li>a</li><li>b</li></ul>", "a\nb"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, HTMLToText(c.in))
		})
	}
}

func TestMatchSkills(t *testing.T) {
	cases := []struct {
		name string
		text string
		want []string
	}{
		{"whole tokens only", "JavaScript and TypeScript", []string{"javascript", "typescript"}},
		{"punctuation", "Experience with C++, C# and Node.js.", []string{"c#", "c++", "node.js"}},
		{"phrase", "Applied Machine\n  Learning at scale", []string{"machine learning"}},
		{"case insensitive", "REACT / redis", []string{"react", "redis"}},
		{"nothing", "We value kindness", []string{}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, MatchSkills(c.text, DefaultSkills))
		})
	}

	assert.Nil(t, MatchSkills("python", nil))
	assert.Nil(t, MatchSkills("   ", DefaultSkills))
}

func TestMergeSkills(t *testing.T) {
	got := MergeSkills([]string{"Go", "python", " "}, []string{"python", "AWS"}, nil)
	assert.Equal(t, []string{"aws", "go", "python"}, got)
	assert.Equal(t, []string{}, MergeSkills())
}
