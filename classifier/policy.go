package classifier

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"time"
)

// TestSentinel in an account's description forces it into the largest threshold bucket.
const TestSentinel = "***TEST***"

// excludedControlCodes are userAccountControl values for accounts that are already
// disabled or whose passwords never expire.
var excludedControlCodes = map[string]struct{}{
	"514":    {},
	"65536":  {},
	"66048":  {},
	"66050":  {},
	"66080":  {},
	"262658": {},
	"262690": {},
}

// Policy decides which accounts are considered stale.
type Policy struct {
	// Thresholds are day counts; an account lands in the largest one it meets.
	Thresholds []int
	// HandsOff are sAMAccountName globs that are never classified.
	HandsOff []string
	// Now defaults to time.Now.
	Now func() time.Time
}

var ErrNoThresholds = errors.New("policy has no thresholds")

// Validate checks thresholds are positive and every hands-off glob is well formed.
func (p Policy) Validate() error {
	if len(p.Thresholds) == 0 {
		return ErrNoThresholds
	}
	for _, t := range p.Thresholds {
		if t <= 0 {
			return fmt.Errorf("threshold must be positive, got %d", t)
		}
	}
	for _, pattern := range p.HandsOff {
		if _, err := path.Match(pattern, ""); err != nil {
			return fmt.Errorf("invalid hands-off pattern %q: %w", pattern, err)
		}
	}
	return nil
}

// IsExcludedControlCode reports whether a userAccountControl value marks an account
// as disabled or non-expiring.
func IsExcludedControlCode(uac string) bool {
	_, ok := excludedControlCodes[uac]
	return ok
}

// ExcludedControlCodes returns every excluded userAccountControl value, sorted.
func ExcludedControlCodes() []string {
	codes := make([]string, 0, len(excludedControlCodes))
	for code := range excludedControlCodes {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// IsHandsOff reports whether accountName matches any of the policy's globs.
func (p Policy) IsHandsOff(accountName string) bool {
	for _, pattern := range p.HandsOff {
		if ok, err := path.Match(pattern, accountName); err == nil && ok {
			return true
		}
	}
	return false
}

func (p Policy) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// descending returns the thresholds largest first, without duplicates.
func (p Policy) descending() []int {
	seen := make(map[int]struct{}, len(p.Thresholds))
	out := make([]int, 0, len(p.Thresholds))
	for _, t := range p.Thresholds {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

// Key is the bucket label for a threshold.
func Key(threshold int) string {
	return strconv.Itoa(threshold)
}
