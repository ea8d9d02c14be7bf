// Package progression derives level values from accumulated experience.
// Every surface that reports progression (wallet reads, leaderboards, HUD headers)
// goes through these functions so the formula cannot drift between call sites.
package progression

const (
	// ExperiencePerLevel is the fixed experience step between two levels.
	ExperiencePerLevel int64 = 1000
	// MinLevel is the level of an account with no experience.
	MinLevel = 1
	// MaxLevel is the level ceiling.
	MaxLevel = 999
)

// LevelFromExperience returns floor(exp/1000)+1 clamped to [MinLevel, MaxLevel].
func LevelFromExperience(exp int64) int {
	if exp <= 0 {
		return MinLevel
	}
	steps := exp / ExperiencePerLevel
	if steps >= MaxLevel-1 {
		return MaxLevel
	}
	return int(steps) + 1
}

// ExperienceCap returns the experience cap shown for level.
func ExperienceCap(level int) int64 {
	return int64(level) * ExperiencePerLevel
}

// ClampLevel bounds a stored level to [MinLevel, MaxLevel].
func ClampLevel(level int) int {
	if level < MinLevel {
		return MinLevel
	}
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}
