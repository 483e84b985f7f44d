package content

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestSplitLines(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, SplitLines("a\nb\n"))
	require.Equal(t, []string{"a", "b"}, SplitLines("a\nb"))
	require.Equal(t, []string{"a", "b"}, SplitLines("a\r\nb\r\n"))
	require.Equal(t, []string{"a", "", "b"}, SplitLines("a\n\nb\n"))
	require.Nil(t, SplitLines(""))
}

func TestLoad_Success(t *testing.T) {
	dir := t.TempDir()
	c, err := Load(Paths{
		Canonical: writeFile(t, dir, "tweets.txt", "one\ntwo\nthree\n"),
		Platforms: map[string]string{
			"mastodon": writeFile(t, dir, "fedi.txt", "f1\nf2\nf3"),
			"bluesky":  writeFile(t, dir, "bsky.txt", "b1\r\nb2\r\nb3\r\n"),
		},
		Replies: writeFile(t, dir, "replies.txt", "hi\nhello\n"),
	})
	require.NoError(t, err)
	require.Equal(t, 3, c.Len())
	require.Equal(t, 2, c.ReplyCount())
	require.Equal(t, "f2", c.Message("mastodon", 1))
	require.Equal(t, "b3", c.Message("bluesky", 2))
	require.Equal(t, "two", c.Message("twitter", 1))
	require.Equal(t, "hello", c.Reply(func(n int) int { return n - 1 }))
}

func TestLoad_LengthMismatch(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(Paths{
		Canonical: writeFile(t, dir, "tweets.txt", "one\ntwo\nthree\n"),
		Platforms: map[string]string{"mastodon": writeFile(t, dir, "fedi.txt", "f1\nf2\n")},
		Replies:   writeFile(t, dir, "replies.txt", "hi\n"),
	})
	require.True(t, errors.Is(err, ErrLengthMismatch), "got %v", err)
}

func TestLoad_EmptyReplies(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(Paths{
		Canonical: writeFile(t, dir, "tweets.txt", "one\n"),
		Replies:   writeFile(t, dir, "replies.txt", ""),
	})
	require.True(t, errors.Is(err, ErrEmpty), "got %v", err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(Paths{Canonical: filepath.Join(t.TempDir(), "nope.txt")})
	require.Error(t, err)
}

func TestNew_Validates(t *testing.T) {
	_, err := New([]string{"a", "b"}, map[string][]string{"bluesky": {"a"}}, []string{"r"})
	require.ErrorIs(t, err, ErrLengthMismatch)
	_, err = New(nil, nil, []string{"r"})
	require.ErrorIs(t, err, ErrEmpty)
}
