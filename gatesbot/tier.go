package gatesbot

// tierBoundaries maps the lowest total level of each band to its tier
// rank. Ordered ascending; ResolveTier takes the floor entry.
var tierBoundaries = []struct {
	Level int
	Tier  int
}{
	{1, 1},
	{5, 2},
	{8, 3},
	{11, 4},
	{14, 5},
	{17, 6},
	{20, 7},
}

// ResolveTier maps a total character level to its tier rank: the tier of
// the highest boundary not exceeding totalLevel. Levels below the lowest
// boundary (including 0, from unparseable sign-ups) resolve to tier 1.
func ResolveTier(totalLevel int) int {
	tier := 1
	for _, b := range tierBoundaries {
		if totalLevel < b.Level {
			break
		}
		tier = b.Tier
	}
	return tier
}
