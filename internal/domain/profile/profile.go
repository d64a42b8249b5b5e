// Package profile holds per-user personalization signals consumed by the
// retrieval pipeline. The signals are supplied by the surrounding system;
// this package only defines their shape.
package profile

// UserContext carries the personalization signals for one search call.
type UserContext struct {
	// WeakSubjects lists subjects the user struggles with. Results whose
	// subject metadata matches any entry get boosted.
	WeakSubjects []string
	// ExamTarget is the exam the user prepares for (matched against the
	// exam_type metadata of results).
	ExamTarget string
}

// IsZero reports whether no personalization signal is present.
func (u UserContext) IsZero() bool {
	return len(u.WeakSubjects) == 0 && u.ExamTarget == ""
}
