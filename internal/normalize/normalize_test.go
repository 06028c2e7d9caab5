package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "stopwords removed", input: "Queensgate Shopping Centre", want: "queensgate"},
		{name: "punctuation removed", input: "kingfisher centre!!", want: "kingfisher"},
		{name: "leading article", input: "The Kingfisher Centre", want: "kingfisher"},
		{name: "retail park", input: "Fengate Retail Park", want: "fengate"},
		{name: "stopword inside word kept", input: "Parkside Mall", want: "parkside"},
		{name: "accents folded", input: "Café Quarter", want: "cafequarter"},
		{name: "digits kept", input: "One-Stop 24", want: "onestop24"},
		{name: "only stopwords", input: "The Mall", want: ""},
		{name: "joined stopword collapses", input: "Re Tail", want: ""},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Name(tt.input))
		})
	}
}

func TestName_Idempotent(t *testing.T) {
	inputs := []string{
		"The Kingfisher Centre",
		"Re Tail",
		"St. David's Dewi Sant",
		"Westfield  London",
		"  MALL  ",
		"Ärnehof Park & Ride",
	}
	for _, in := range inputs {
		once := Name(in)
		assert.Equal(t, once, Name(once), "input %q", in)
	}
}

func TestName_CaseAndPunctuationInsensitive(t *testing.T) {
	assert.Equal(t, Name("The Kingfisher Centre"), Name("kingfisher centre!!"))
}

func TestCompact(t *testing.T) {
	assert.Equal(t, "themall", Compact("The Mall"))
	assert.Equal(t, "queensgateshoppingcentre", Compact("Queensgate Shopping-Centre"))
}

func TestPostcode(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"PE1 1NT", "PE11NT"},
		{" pe1  1nt ", "PE11NT"},
		{"sw1a\t1aa", "SW1A1AA"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, Postcode(tt.input))
		})
	}
}

func TestValidPostcode(t *testing.T) {
	assert.True(t, ValidPostcode("PE11NT"))
	assert.True(t, ValidPostcode("SW1A1AA"))
	assert.True(t, ValidPostcode("B976RT"))
	assert.False(t, ValidPostcode(""))
	assert.False(t, ValidPostcode("PE1"))
	assert.False(t, ValidPostcode("12345"))
}

func TestWebsite(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"https://www.queensgate-shopping.co.uk/", "queensgate-shopping.co.uk"},
		{"http://queensgate-shopping.co.uk", "queensgate-shopping.co.uk"},
		{"www.Queensgate-Shopping.co.uk", "queensgate-shopping.co.uk"},
		{"https://www.lidl.co.uk/stores/peterborough/", "lidl.co.uk/stores/peterborough"},
		{"https://example.com/?utm_source=x#top", "example.com"},
		{"   ", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, Website(tt.input))
		})
	}
}

func TestHost(t *testing.T) {
	assert.Equal(t, "lidl.co.uk", Host("lidl.co.uk/stores/peterborough"))
	assert.Equal(t, "example.com", Host("example.com"))
	assert.Equal(t, "", Host(""))
}
