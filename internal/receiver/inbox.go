package receiver

import "sync"

const defaultInboxSize = 100

// inbox keeps the most recent notifications and remembers their request ids
// so a redelivered broadcast is not shown twice. The oldest entry is evicted
// once the inbox is full.
type inbox struct {
	mu      sync.Mutex
	entries []DonorNotification
	next    int
	full    bool
	seen    map[string]struct{}
}

func newInbox(size int) *inbox {
	if size <= 0 {
		size = defaultInboxSize
	}
	return &inbox{entries: make([]DonorNotification, size), seen: make(map[string]struct{}, size)}
}

func (b *inbox) Seen(requestID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.seen[requestID]
	return ok
}

// Add stores n unless its request is already present.
func (b *inbox) Add(n DonorNotification) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.seen[n.RequestID]; ok {
		return false
	}
	if b.full {
		delete(b.seen, b.entries[b.next].RequestID)
	}
	b.entries[b.next] = n
	b.seen[n.RequestID] = struct{}{}
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
	return true
}

func (b *inbox) List() []DonorNotification {
	b.mu.Lock()
	defer b.mu.Unlock()
	count := b.next
	if b.full {
		count = len(b.entries)
	}
	out := make([]DonorNotification, 0, count)
	for i := 1; i <= count; i++ {
		idx := (b.next - i + len(b.entries)) % len(b.entries)
		out = append(out, b.entries[idx])
	}
	return out
}
