// Package analysis holds the node analysis side-table and the two
// passes that populate it: SetDestinations (jump target resolution) and
// SetDeadCode (reachability). Per the design note in spec.md §9, nothing
// here is embedded on ncs.Instruction itself; every downstream pass goes
// through the tolerant Try* accessors and degrades instead of crashing
// when a position or destination is missing.
package analysis

import "sort"

// Record is the per-instruction analysis state: position confirmation,
// resolved jump destination, and liveness.
type Record struct {
	pos        int
	hasPos     bool
	dest       int
	hasDest    bool
	dead       bool
	jumpTarget bool
}

// Store maps instruction offsets (used as the stable identity key, since
// offsets are unique and monotonic within a subroutine per spec.md §3)
// to their Record.
type Store struct {
	records map[int]*Record
}

// NewStore creates an empty analysis store.
func NewStore() *Store {
	return &Store{records: make(map[int]*Record)}
}

func (s *Store) rec(offset int) *Record {
	r, ok := s.records[offset]
	if !ok {
		r = &Record{}
		s.records[offset] = r
	}
	return r
}

// SetPos records the confirmed stream position of the instruction at
// offset. Called once per instruction during the initial walk.
func (s *Store) SetPos(offset, pos int) {
	r := s.rec(offset)
	r.pos = pos
	r.hasPos = true
}

// TryGetPos returns the confirmed position for offset, if any.
func (s *Store) TryGetPos(offset int) (int, bool) {
	r, ok := s.records[offset]
	if !ok || !r.hasPos {
		return 0, false
	}
	return r.pos, true
}

// SetDestination records that the jump instruction at jumpOffset
// resolves to target.
func (s *Store) SetDestination(jumpOffset, target int) {
	r := s.rec(jumpOffset)
	r.dest = target
	r.hasDest = true
	s.rec(target).jumpTarget = true
}

// TryGetDestination returns the resolved destination for the jump at
// jumpOffset, if SetDestinations has run and succeeded for it.
func (s *Store) TryGetDestination(jumpOffset int) (int, bool) {
	r, ok := s.records[jumpOffset]
	if !ok || !r.hasDest {
		return 0, false
	}
	return r.dest, true
}

// IsJumpTarget reports whether some instruction's resolved destination
// points at offset.
func (s *Store) IsJumpTarget(offset int) bool {
	r, ok := s.records[offset]
	return ok && r.jumpTarget
}

// MarkDead flags the instruction at offset as unreachable.
func (s *Store) MarkDead(offset int) {
	s.rec(offset).dead = true
}

// IsDead reports whether offset was flagged unreachable by SetDeadCode.
// Absence of a record is not dead — only an explicit mark is.
func (s *Store) IsDead(offset int) bool {
	r, ok := s.records[offset]
	return ok && r.dead
}

// Origins returns every jump offset whose resolved destination is
// target, i.e. the back-edges the loop-discovery logic in reconstruct
// needs (spec.md §4.6 "Loop discovery").
func (s *Store) Origins(target int) []int {
	var origins []int
	for off, r := range s.records {
		if r.hasDest && r.dest == target {
			origins = append(origins, off)
		}
	}
	sort.Ints(origins)
	return origins
}
