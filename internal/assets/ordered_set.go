package assets

import "github.com/ethereum/go-ethereum/common"

// OrderedSet is an insertion-ordered set of asset identifiers with O(1)
// membership checks. Enumeration order is part of the accounting contract:
// proportional withdrawal walks assets in exactly this order, so the order
// must survive removals and snapshot round trips.
type OrderedSet struct {
	index map[common.Address]int
	items []common.Address
}

func NewOrderedSet(items ...common.Address) *OrderedSet {
	s := &OrderedSet{index: make(map[common.Address]int)}
	for _, item := range items {
		s.Add(item)
	}
	return s
}

// Add appends the asset if absent and reports whether it was inserted.
func (s *OrderedSet) Add(asset common.Address) bool {
	if _, ok := s.index[asset]; ok {
		return false
	}
	s.index[asset] = len(s.items)
	s.items = append(s.items, asset)
	return true
}

// Remove deletes the asset, keeping the relative order of the remainder.
func (s *OrderedSet) Remove(asset common.Address) bool {
	pos, ok := s.index[asset]
	if !ok {
		return false
	}
	s.items = append(s.items[:pos], s.items[pos+1:]...)
	delete(s.index, asset)
	for i := pos; i < len(s.items); i++ {
		s.index[s.items[i]] = i
	}
	return true
}

func (s *OrderedSet) Contains(asset common.Address) bool {
	_, ok := s.index[asset]
	return ok
}

func (s *OrderedSet) Len() int {
	return len(s.items)
}

// Items returns the assets in insertion order. The slice is a copy.
func (s *OrderedSet) Items() []common.Address {
	out := make([]common.Address, len(s.items))
	copy(out, s.items)
	return out
}

func (s *OrderedSet) Clone() *OrderedSet {
	clone := &OrderedSet{
		index: make(map[common.Address]int, len(s.index)),
		items: make([]common.Address, len(s.items)),
	}
	copy(clone.items, s.items)
	for asset, pos := range s.index {
		clone.index[asset] = pos
	}
	return clone
}
