package content

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	// ErrLengthMismatch is returned when the post files differ in length
	ErrLengthMismatch = errors.New("content: post files must have the exact same length")
	// ErrEmpty is returned when a post file or the reply file has no lines
	ErrEmpty = errors.New("content: file has no lines")
)

// Paths locates the content files. Platforms maps a platform name to its
// own variant file; platforms not listed post the canonical sequence.
type Paths struct {
	Canonical string
	Platforms map[string]string
	Replies   string
}

// Content holds the parallel post sequences and the reply pool.
// It is immutable once loaded.
type Content struct {
	canonical []string
	platforms map[string][]string
	replies   []string
}

// Load reads and validates every content file
func Load(p Paths) (*Content, error) {
	canonical, err := readLines(p.Canonical)
	if err != nil {
		return nil, err
	}
	c := &Content{canonical: canonical, platforms: make(map[string][]string, len(p.Platforms))}
	for name, path := range p.Platforms {
		if path == "" {
			continue
		}
		lines, err := readLines(path)
		if err != nil {
			return nil, err
		}
		c.platforms[name] = lines
	}
	c.replies, err = readLines(p.Replies)
	if err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// New builds Content from in-memory sequences, validating it like Load
func New(canonical []string, platforms map[string][]string, replies []string) (*Content, error) {
	c := &Content{canonical: canonical, platforms: platforms, replies: replies}
	if c.platforms == nil {
		c.platforms = map[string][]string{}
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Content) validate() error {
	if len(c.canonical) == 0 {
		return fmt.Errorf("canonical posts: %w", ErrEmpty)
	}
	for name, seq := range c.platforms {
		if len(seq) != len(c.canonical) {
			return fmt.Errorf("%w: %s has %d lines, canonical has %d", ErrLengthMismatch, name, len(seq), len(c.canonical))
		}
	}
	if len(c.replies) == 0 {
		return fmt.Errorf("replies: %w", ErrEmpty)
	}
	return nil
}

// Len returns the shared length of every post sequence
func (c *Content) Len() int { return len(c.canonical) }

// ReplyCount returns the size of the reply pool
func (c *Content) ReplyCount() int { return len(c.replies) }

// Message returns the post at index i for platform
func (c *Content) Message(platform string, i int) string {
	if seq, ok := c.platforms[platform]; ok {
		return seq[i]
	}
	return c.canonical[i]
}

// Reply returns the canned reply chosen by pick, which must return a
// value in [0, n)
func (c *Content) Reply(pick func(n int) int) string {
	return c.replies[pick(len(c.replies))]
}

func readLines(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("content: read %s: %w", path, err)
	}
	lines := SplitLines(string(b))
	if len(lines) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmpty)
	}
	return lines, nil
}

// SplitLines splits s on newlines. A trailing carriage return is removed
// from each line and the empty element left by a final newline is dropped.
func SplitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
