package sweep

import (
	"context"
	"fmt"
	"strings"

	"github.com/marmos91/pagesweep/pkg/pagecache"
	"github.com/marmos91/pagesweep/pkg/vfs"
)

// Policy selects how one inode's page cache is invalidated.
type Policy int

const (
	// Lazy drops clean pages and leaves dirty, in-flight and batched pages
	// alone. It never waits.
	Lazy Policy = iota
	// Strict waits for writeback, writes dirty pages back and then drops
	// everything, leaving the mapping empty on success.
	Strict
)

func (p Policy) String() string {
	switch p {
	case Lazy:
		return "lazy"
	case Strict:
		return "strict"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy accepts "lazy" or "strict", case-insensitively. An empty
// string means Lazy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lazy":
		return Lazy, nil
	case "strict":
		return Strict, nil
	default:
		return Lazy, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

func (p Policy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Policy) UnmarshalText(b []byte) error {
	v, err := ParsePolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Apply invalidates ino's page cache and returns the number of pages
// dropped.
func (p Policy) Apply(ctx context.Context, ino *vfs.Inode) (int, error) {
	m := ino.Mapping()
	switch p {
	case Lazy:
		return m.InvalidateClean(0, pagecache.MaxIndex), nil
	case Strict:
		return m.InvalidateAll(ctx, ino.Launder)
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownPolicy, p)
	}
}
