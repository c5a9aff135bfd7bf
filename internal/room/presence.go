package room

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/Aviral1511/Collaborative-Canvas/pkg/protocol"
)

// Join records authorID as a member and assigns it a display name and color.
// Joining again without leaving returns the identity already assigned.
func (r *Room) Join(authorID string) protocol.Member {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.members[authorID]; ok {
		return m.member
	}

	r.joins++
	m := &memberEntry{
		member: protocol.Member{
			AuthorID:    authorID,
			DisplayName: fmt.Sprintf("User-%d", len(r.members)+1),
			Color:       r.pickColor(),
		},
		seq: r.joins,
	}
	r.members[authorID] = m
	return m.member
}

// Leave drops authorID from the member list.
func (r *Room) Leave(authorID string) (protocol.Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[authorID]
	if !ok {
		return protocol.Member{}, false
	}
	delete(r.members, authorID)
	if len(r.members) == 0 {
		r.idleSince = time.Now()
	}
	return m.member, true
}

func (r *Room) Member(authorID string) (protocol.Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.members[authorID]
	if !ok {
		return protocol.Member{}, false
	}
	return m.member, true
}

// Members lists current members in join order.
func (r *Room) Members() []protocol.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*memberEntry, 0, len(r.members))
	for _, m := range r.members {
		entries = append(entries, m)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]protocol.Member, len(entries))
	for i, m := range entries {
		out[i] = m.member
	}
	return out
}

func (r *Room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// pickColor returns the first palette color no member holds, or a random
// palette entry once all are taken.
func (r *Room) pickColor() string {
	used := make(map[string]bool, len(r.members))
	for _, m := range r.members {
		used[m.member.Color] = true
	}
	for _, c := range r.opts.Palette {
		if !used[c] {
			return c
		}
	}
	return r.opts.Palette[rand.Intn(len(r.opts.Palette))]
}
