package types

import "maps"

type ItemList map[RecordId]struct{}

func (i ItemList) Add(id RecordId) {
	i[id] = struct{}{}
}

func (i ItemList) Contains(id RecordId) bool {
	_, ok := i[id]
	return ok
}

func (a ItemList) Intersect(b ItemList) {
	for id := range a {
		_, ok := b[id]
		if !ok {
			delete(a, id)
		}
	}
}

func (i ItemList) Merge(other ItemList) {
	maps.Copy(i, other)
}

func (i ItemList) HasIntersection(other ItemList) bool {
	small, large := i, other
	if len(large) < len(small) {
		small, large = large, small
	}
	for id := range small {
		if _, ok := large[id]; ok {
			return true
		}
	}
	return false
}

func (i ItemList) IntersectionCount(other ItemList) int {
	small, large := i, other
	if len(large) < len(small) {
		small, large = large, small
	}
	count := 0
	for id := range small {
		if _, ok := large[id]; ok {
			count++
		}
	}
	return count
}

func (i ItemList) Clone() ItemList {
	n := make(ItemList, len(i))
	maps.Copy(n, i)
	return n
}
