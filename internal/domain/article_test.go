package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDisplayID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		want   ArticleID
		wantOK bool
	}{
		{"Pub - Title [123].pdf", "123", true},
		{"Pub - Title [123]", "123", true},
		{"Pub - A [draft] story [987654]", "987654", true},
		{"Pub - Title [123] trailing", "123", true},
		{"no id here.pdf", "", false},
		{"Pub - empty [].pdf", "", false},
		{"Pub [1] - nested [2] [3].pdf", "3", true},
	}
	for _, tc := range cases {
		got, ok := ParseDisplayID(tc.name)
		assert.Equal(t, tc.wantOK, ok, tc.name)
		assert.Equal(t, tc.want, got, tc.name)
	}
}

func TestDisplayNameKeepsIDRecoverable(t *testing.T) {
	t.Parallel()

	name := DisplayName("The [Weekly]", "Why a/b testing [fails]", "42")
	assert.Equal(t, "The (Weekly) - Why a-b testing (fails) [42].pdf", name)

	id, ok := ParseDisplayID(name)
	assert.True(t, ok)
	assert.Equal(t, ArticleID("42"), id)

	assert.Equal(t, "Unknown - T [1].pdf", DisplayName(" ", "T", "1"))
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		state DeviceFileState
		want  ReadState
	}{
		{DeviceFileState{CurrentPage: 0, NumPages: 10}, ReadUnread},
		{DeviceFileState{CurrentPage: 4, NumPages: 10}, ReadInProgress},
		{DeviceFileState{CurrentPage: 9, NumPages: 10}, ReadFully},
		{DeviceFileState{CurrentPage: 0, NumPages: 1}, ReadFully},
		{DeviceFileState{CurrentPage: 7, NumPages: 5}, ReadInProgress},
		{DeviceFileState{CurrentPage: 0, NumPages: 0}, ReadUnread}, // unopened wins over an unknown page count
		{DeviceFileState{CurrentPage: 3, NumPages: 0}, ReadUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.state.Classify(), "%+v", tc.state)
	}
}
