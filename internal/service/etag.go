package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"screenflow/internal/logger"
	"screenflow/internal/repository"
	"screenflow/internal/visibility"
)

// WildcardETag matches any current etag
const WildcardETag = "*"

// ETagCalculator derives the weak etag of a (response set, screen) pair from
// the screen version counter and a fingerprint of the visible question ids.
type ETagCalculator struct {
	catalog repository.QuestionCatalog
	store   repository.AnswerStore
	log     *logger.Logger
}

// NewETagCalculator creates a new etag calculator
func NewETagCalculator(catalog repository.QuestionCatalog, store repository.AnswerStore, log *logger.Logger) *ETagCalculator {
	return &ETagCalculator{
		catalog: catalog,
		store:   store,
		log:     log.With("component", "etag"),
	}
}

// Compute recomputes the visible set on its own rather than trusting the
// caller's. fallbackVisible is fingerprinted only when that recompute fails.
func (c *ETagCalculator) Compute(ctx context.Context, responseSetID, screenKey string, fallbackVisible []string) string {
	version, err := c.store.ScreenVersion(ctx, responseSetID, screenKey)
	if err != nil {
		c.log.Warn("screen version unavailable", "response_set_id", responseSetID, "screen_key", screenKey, "error", err)
		version = 0
	}
	visible, err := c.visibleIDs(ctx, responseSetID, screenKey)
	if err != nil {
		c.log.Warn("visible set recompute failed", "response_set_id", responseSetID, "screen_key", screenKey, "error", err)
		visible = fallbackVisible
	}
	return FormatETag(responseSetID, screenKey, version, visible)
}

func (c *ETagCalculator) visibleIDs(ctx context.Context, responseSetID, screenKey string) ([]string, error) {
	rules, err := c.catalog.GetVisibilityRulesForScreen(ctx, screenKey)
	if err != nil {
		return nil, err
	}
	parents := make(map[string]string)
	for _, pid := range visibility.ParentIDs(rules) {
		a, err := c.store.GetExisting(ctx, responseSetID, pid)
		if err != nil {
			continue
		}
		if v, ok := visibility.CanonicalizeAnswer(a); ok {
			parents[pid] = v
		}
	}
	return visibility.SortedIDs(visibility.ComputeVisibleSet(rules, parents)), nil
}

// FormatETag renders W/"<hash(rs:screen:v<version>|vis:<fingerprint>)>"
func FormatETag(responseSetID, screenKey string, version int64, visible []string) string {
	ids := append([]string(nil), visible...)
	sort.Strings(ids)
	fingerprint := xxhash.Sum64String(strings.Join(ids, "\n"))
	digest := xxhash.Sum64String(fmt.Sprintf("%s:%s:v%d|vis:%016x", responseSetID, screenKey, version, fingerprint))
	return fmt.Sprintf(`W/"%016x"`, digest)
}

// NormalizeETag strips a leading W/, surrounding quotes and surrounding braces
func NormalizeETag(tag string) string {
	t := strings.TrimSpace(tag)
	if len(t) >= 2 && strings.EqualFold(t[:2], "W/") {
		t = t[2:]
	}
	t = strings.TrimSpace(t)
	if len(t) >= 2 && t[0] == '"' && t[len(t)-1] == '"' {
		t = t[1 : len(t)-1]
	}
	if len(t) >= 2 && t[0] == '{' && t[len(t)-1] == '}' {
		t = t[1 : len(t)-1]
	}
	return t
}

// CompareETag reports whether a supplied If-Match token matches the current etag
func CompareETag(current, supplied string) bool {
	if strings.TrimSpace(supplied) == WildcardETag {
		return true
	}
	return NormalizeETag(current) == NormalizeETag(supplied)
}
