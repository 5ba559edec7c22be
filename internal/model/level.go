package model

import "strings"

// Level is a permission level on a document. Levels are totally ordered:
// owner > editor > viewer.
type Level string

const (
	LevelViewer Level = "viewer"
	LevelEditor Level = "editor"
	LevelOwner  Level = "owner"
)

var levelRank = map[Level]int{
	LevelViewer: 0,
	LevelEditor: 1,
	LevelOwner:  2,
}

// ParseLevel normalizes s and reports whether it names a known level.
func ParseLevel(s string) (Level, bool) {
	level := Level(strings.ToLower(strings.TrimSpace(s)))
	_, ok := levelRank[level]
	return level, ok
}

// Rank returns the position of l in the level order, or -1 for an unknown level.
func (l Level) Rank() int {
	rank, ok := levelRank[l]
	if !ok {
		return -1
	}
	return rank
}

func (l Level) Valid() bool {
	return l.Rank() >= 0
}

// AtLeast reports whether l grants everything required grants.
func (l Level) AtLeast(required Level) bool {
	return l.Valid() && required.Valid() && l.Rank() >= required.Rank()
}

func (l Level) String() string {
	return string(l)
}

// HighestLevel returns the highest known level in levels.
// Unknown levels are skipped; ok is false when nothing usable remains.
func HighestLevel(levels []Level) (Level, bool) {
	best := Level("")
	for _, level := range levels {
		if level.Rank() > best.Rank() {
			best = level
		}
	}

	return best, best.Valid()
}
