package repository

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/lets/pkg/metrics"
	"github.com/puzpuzpuz/xsync/v4"
)

// Treap-based, in-memory Store implementation.
//
// Each key owns one treap ordered by score DESC, then by update sequence
// ASC, so among equal scores the member that reached it first ranks
// higher. Subtree sizes give O(log n) rank and index lookups.

const memoryBackend = "memory"

// treap node
type node struct {
	member int64
	score  float64
	seq    uint64
	prio   uint64
	left   *node
	right  *node
	size   int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// before reports whether a ranks ahead of b.
func before(aScore float64, aSeq uint64, bScore float64, bSeq uint64) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aSeq < bSeq
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n, in *node) *node {
	if n == nil {
		in.size = 1
		return in
	}
	if before(in.score, in.seq, n.score, n.seq) {
		n.left = insert(n.left, in)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, in)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, score float64, seq uint64) *node {
	if n == nil {
		return nil
	}
	switch {
	case n.score == score && n.seq == seq:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, score, seq)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, score, seq)
		}
	case before(score, seq, n.score, n.seq):
		n.left = deleteNode(n.left, score, seq)
	default:
		n.right = deleteNode(n.right, score, seq)
	}
	fix(n)
	return n
}

// countBefore returns how many nodes rank ahead of (score, seq).
func countBefore(n *node, score float64, seq uint64) int {
	c := 0
	for n != nil {
		if before(n.score, n.seq, score, seq) {
			c += nsize(n.left) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return c
}

// kth returns the node at 0-based index i.
func kth(n *node, i int) *node {
	for n != nil {
		l := nsize(n.left)
		switch {
		case i < l:
			n = n.left
		case i == l:
			return n
		default:
			i -= l + 1
			n = n.right
		}
	}
	return nil
}

// collectTopN appends up to limit entries in rank order.
func collectTopN(n *node, limit int, out *[]Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, Entry{Rank: len(*out) + 1, UserID: n.member, Score: n.score})
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out)
	}
}

// board is one sorted set.
type board struct {
	mu    sync.RWMutex
	root  *node
	byID  map[int64]*node
	seq   uint64
	prios *rand.Rand
}

// TreapStore keeps every sorted set in process memory.
type TreapStore struct {
	boards  *xsync.Map[string, *board]
	members atomic.Int64
	seed    uint64
	boardN  atomic.Uint64
}

// NewTreapStore constructs an empty treap store.
func NewTreapStore(opts ...Option) *TreapStore {
	s := &TreapStore{
		boards: xsync.NewMap[string, *board](),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.seed == 0 {
		s.seed = rand.Uint64()
	}
	metrics.UpdateStoreMembers(memoryBackend, 0)
	return s
}

func (s *TreapStore) board(key string, create bool) *board {
	if !create {
		b, _ := s.boards.Load(key)
		return b
	}
	b, _ := s.boards.LoadOrCompute(key, func() (*board, bool) {
		n := s.boardN.Add(1)
		return &board{
			byID:  make(map[int64]*node),
			prios: rand.New(rand.NewPCG(s.seed, n)),
		}, false
	})
	return b
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(memoryBackend, op, float64(time.Since(start).Microseconds())/1000)
}

// Upsert implements Store.Upsert with O(log n) expected time.
func (s *TreapStore) Upsert(_ context.Context, key string, member int64, score float64) error {
	if key == "" {
		return ErrInvalidKey
	}
	if math.IsNaN(score) {
		return ErrInvalidScore
	}
	defer observe("upsert", time.Now())

	b := s.board(key, true)
	b.mu.Lock()
	if old, ok := b.byID[member]; ok {
		if old.score == score {
			b.mu.Unlock()
			return nil
		}
		b.root = deleteNode(b.root, old.score, old.seq)
	} else {
		s.members.Add(1)
	}
	b.seq++
	n := &node{member: member, score: score, seq: b.seq, prio: b.prios.Uint64()}
	b.byID[member] = n
	b.root = insert(b.root, n)
	b.mu.Unlock()

	metrics.UpdateStoreMembers(memoryBackend, int(s.members.Load()))
	return nil
}

// Rank implements Store.Rank in O(log n).
func (s *TreapStore) Rank(_ context.Context, key string, member int64) (int, bool, error) {
	if key == "" {
		return 0, false, ErrInvalidKey
	}
	defer observe("rank", time.Now())

	b := s.board(key, false)
	if b == nil {
		return 0, false, nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	n, ok := b.byID[member]
	if !ok {
		return 0, false, nil
	}
	return countBefore(b.root, n.score, n.seq) + 1, true, nil
}

// Score implements Store.Score.
func (s *TreapStore) Score(_ context.Context, key string, member int64) (float64, bool, error) {
	if key == "" {
		return 0, false, ErrInvalidKey
	}
	b := s.board(key, false)
	if b == nil {
		return 0, false, nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	n, ok := b.byID[member]
	if !ok {
		return 0, false, nil
	}
	return n.score, true, nil
}

// At implements Store.At in O(log n).
func (s *TreapStore) At(_ context.Context, key string, index int) (Entry, bool, error) {
	if key == "" {
		return Entry{}, false, ErrInvalidKey
	}
	defer observe("at", time.Now())

	b := s.board(key, false)
	if b == nil || index < 0 {
		return Entry{}, false, nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := kth(b.root, index)
	if n == nil {
		return Entry{}, false, nil
	}
	return Entry{Rank: index + 1, UserID: n.member, Score: n.score}, true, nil
}

// Remove implements Store.Remove.
func (s *TreapStore) Remove(_ context.Context, key string, member int64) (bool, error) {
	if key == "" {
		return false, ErrInvalidKey
	}
	b := s.board(key, false)
	if b == nil {
		return false, nil
	}
	b.mu.Lock()
	n, ok := b.byID[member]
	if ok {
		b.root = deleteNode(b.root, n.score, n.seq)
		delete(b.byID, member)
	}
	b.mu.Unlock()

	if ok {
		metrics.UpdateStoreMembers(memoryBackend, int(s.members.Add(-1)))
	}
	return ok, nil
}

// Count implements Store.Count.
func (s *TreapStore) Count(_ context.Context, key string) (int, error) {
	if key == "" {
		return 0, ErrInvalidKey
	}
	b := s.board(key, false)
	if b == nil {
		return 0, nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byID), nil
}

// Top implements Store.Top.
func (s *TreapStore) Top(_ context.Context, key string, n int) ([]Entry, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	defer observe("top", time.Now())

	b := s.board(key, false)
	if b == nil {
		return []Entry{}, nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Entry, 0, min(n, len(b.byID)))
	collectTopN(b.root, n, &out)
	return out, nil
}

// Keys returns every sorted set name currently held.
func (s *TreapStore) Keys() []string {
	keys := make([]string, 0, s.boards.Size())
	s.boards.Range(func(k string, _ *board) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}
