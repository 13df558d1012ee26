package circuit

import (
	"sort"
	"sync"
	"time"
)

// PeerStats are the counters kept for one remote address.
type PeerStats struct {
	Remote       string    `json:"remote"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	Received     uint64    `json:"received"`
	Sent         uint64    `json:"sent"`
	DecodeErrors uint64    `json:"decode_errors"`
	LastSequence uint32    `json:"last_sequence"`
	LastMessage  string    `json:"last_message,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

// PeerTable tracks remote addresses by their string form.
type PeerTable struct {
	mu    sync.RWMutex
	peers map[string]PeerStats
}

func NewPeerTable() *PeerTable {
	return &PeerTable{peers: make(map[string]PeerStats)}
}

func (t *PeerTable) touch(remote string, at time.Time, fn func(*PeerStats)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[remote]
	if !ok {
		p = PeerStats{Remote: remote, FirstSeen: at}
	}
	p.LastSeen = at
	fn(&p)
	t.peers[remote] = p
}

func (t *PeerTable) noteReceived(remote string, at time.Time, seq uint32, message string) {
	t.touch(remote, at, func(p *PeerStats) {
		p.Received++
		p.LastSequence = seq
		p.LastMessage = message
	})
}

func (t *PeerTable) noteDecodeError(remote string, at time.Time, err error) {
	t.touch(remote, at, func(p *PeerStats) {
		p.Received++
		p.DecodeErrors++
		p.LastError = err.Error()
	})
}

func (t *PeerTable) noteSent(remote string, at time.Time) {
	t.touch(remote, at, func(p *PeerStats) {
		p.Sent++
	})
}

func (t *PeerTable) Get(remote string) (PeerStats, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.peers[remote]
	return p, ok
}

// List returns every peer ordered by remote address.
func (t *PeerTable) List() []PeerStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]PeerStats, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Remote < out[j].Remote
	})
	return out
}

// Prune drops peers not seen since before cutoff and returns how many.
func (t *PeerTable) Prune(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for k, p := range t.peers {
		if p.LastSeen.Before(cutoff) {
			delete(t.peers, k)
			n++
		}
	}
	return n
}
