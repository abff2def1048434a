package syncer

import (
	"strconv"
	"sync"
	"time"
)

// localIDs hands out millisecond based identifiers that strictly increase
// within the process.
type localIDs struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func (l *localIDs) next() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ms := l.now().UnixMilli()
	if ms <= l.last {
		ms = l.last + 1
	}
	l.last = ms
	return strconv.FormatInt(ms, 10)
}
