package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var ErrLockFailed = errors.New("could not acquire lock")

// Locker serializes work on shop entities. Lock acquires every key in sorted
// order and returns a function that releases them all.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (func(), error)
}

func ItemKey(guildID string, itemID int64) string {
	return fmt.Sprintf("item:%s:%d", guildID, itemID)
}

func AccountKey(guildID, userID string) string {
	return fmt.Sprintf("account:%s:%s", guildID, userID)
}

func orderedKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
