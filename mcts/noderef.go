package mcts

// NodeRef is an index handle into a Tree's node arena, replacing a pointer
// graph with plain integers so the arena can be grown/reused without the
// aliasing hazards a pointer-based tree would carry under concurrent
// mutation. Renamed from the teacher's "naughty" index type.
type NodeRef int32

const nilRef NodeRef = -1

func (r NodeRef) valid() bool { return r >= 0 }
