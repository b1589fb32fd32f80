package queue

import "sort"

// SubscriptionSet is the set of departments a synchronizer listens to.
// The public topic is always listened to and is not stored here.
type SubscriptionSet struct {
	departments map[string]struct{}
}

func NewSubscriptionSet(departments ...string) SubscriptionSet {
	s := SubscriptionSet{departments: make(map[string]struct{}, len(departments))}
	for _, d := range departments {
		s.Add(d)
	}
	return s
}

func (s *SubscriptionSet) Add(department string) bool {
	if department == "" {
		return false
	}
	if s.departments == nil {
		s.departments = map[string]struct{}{}
	}
	if _, ok := s.departments[department]; ok {
		return false
	}
	s.departments[department] = struct{}{}
	return true
}

func (s SubscriptionSet) Has(department string) bool {
	_, ok := s.departments[department]
	return ok
}

// Admits reports whether a record in department may be cached.
// Departmentless records are always admitted.
func (s SubscriptionSet) Admits(department string) bool {
	return department == "" || s.Has(department)
}

func (s *SubscriptionSet) Clear() { s.departments = nil }

func (s SubscriptionSet) Len() int { return len(s.departments) }

// Slice returns the departments sorted.
func (s SubscriptionSet) Slice() []string {
	out := make([]string, 0, len(s.departments))
	for d := range s.departments {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
