package attendance

// PenaltyPerMissedDay is the fine charged for each missed day, in whole currency units.
const PenaltyPerMissedDay = 3000

// Penalty returns the fine owed for missedDays.
func Penalty(missedDays int) int {
	return missedDays * PenaltyPerMissedDay
}
