// Package session drives tabs and elements of an already-running Chromium
// browser over the DevTools protocol.
package session

import (
	"context"
	"time"

	"github.com/dgnsrekt/shotpost/internal/locator"
	"github.com/dgnsrekt/shotpost/internal/types"
)

// TabHandle identifies one browser tab. It is the CDP target id.
type TabHandle string

func (h TabHandle) String() string {
	return types.ShortTargetID(string(h))
}

// Element is a reference to a node found by a wait. Methods fail with a
// STALE_REFERENCE error once the page has replaced the node.
type Element interface {
	Click(ctx context.Context) error
	TypeText(ctx context.Context, text string) error
	SendFilePath(ctx context.Context, path string) error
}

// Session is the single browser connection shared by every upload.
// Callers serialize mutating use; implementations only guard their own state.
type Session interface {
	ListTabs(ctx context.Context) ([]TabHandle, error)
	ActiveTab() TabHandle
	SwitchTo(ctx context.Context, h TabHandle) error
	OpenNewTab(ctx context.Context, url string) (TabHandle, error)
	CloseTab(ctx context.Context, h TabHandle) error
	CurrentURL(ctx context.Context) (string, error)

	WaitForClickable(ctx context.Context, loc locator.Locator, timeout time.Duration) (Element, error)
	WaitForVisible(ctx context.Context, loc locator.Locator, timeout time.Duration) (Element, error)
	WaitForPresent(ctx context.Context, loc locator.Locator, timeout time.Duration) (Element, error)

	IsAlive(ctx context.Context) bool
	Close() error
}

// TabURL switches to h and returns its URL.
func TabURL(ctx context.Context, s Session, h TabHandle) (string, error) {
	if err := s.SwitchTo(ctx, h); err != nil {
		return "", err
	}
	return s.CurrentURL(ctx)
}
