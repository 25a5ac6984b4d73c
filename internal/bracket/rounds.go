package bracket

import "sort"

// Round is one stage of the bracket with its matches in play order.
type Round struct {
	Number  int
	Matches []Match
}

// GroupRounds buckets matches by round, earliest stage first.
func GroupRounds(matches []Match) []Round {
	byRound := make(map[int][]Match)
	var nums []int
	for _, m := range matches {
		if _, exists := byRound[m.RoundNumber]; !exists {
			nums = append(nums, m.RoundNumber)
		}
		byRound[m.RoundNumber] = append(byRound[m.RoundNumber], m)
	}

	// Rounds count down: 16, 8, 4, 2
	sort.Sort(sort.Reverse(sort.IntSlice(nums)))

	rounds := make([]Round, 0, len(nums))
	for _, n := range nums {
		ms := byRound[n]
		sort.Slice(ms, func(i, j int) bool {
			return ms[i].MatchOrder < ms[j].MatchOrder
		})
		rounds = append(rounds, Round{Number: n, Matches: ms})
	}
	return rounds
}
