package domain

// Candidate is a cell that matches a score under a given axis pair.
// CellID is -1 when the digits cannot be located on the axis.
type Candidate struct {
	Period    Period
	CellID    int
	Owner     string
	HomeDigit int
	AwayDigit int
	IsReverse bool
}

// Unclaimed reports whether nobody holds the candidate cell.
func (c Candidate) Unclaimed() bool { return c.Owner == "" }

// LastDigit returns |score| mod 10.
func LastDigit(score int) int {
	if score < 0 {
		score = -score
	}
	return score % 10
}

// Resolve maps a score to its winning cell(s). Pure: identical inputs always
// produce identical candidates, so live sync, repair and simulation agree.
//
//	row = index of awayDigit in axis.Away
//	col = index of homeDigit in axis.Home
//
// With reverse enabled the digit roles are swapped for a second candidate,
// dropped when it lands on the primary cell.
func Resolve(period Period, home, away int, axis AxisPair, grid Grid, reverse bool) []Candidate {
	hd, ad := LastDigit(home), LastDigit(away)

	primary := candidateAt(period, hd, ad, indexOf(axis.Away, ad), indexOf(axis.Home, hd), grid)
	out := []Candidate{primary}
	if !reverse {
		return out
	}

	rev := candidateAt(period, hd, ad, indexOf(axis.Away, hd), indexOf(axis.Home, ad), grid)
	rev.IsReverse = true
	if rev.CellID == primary.CellID {
		return out
	}
	return append(out, rev)
}

func candidateAt(period Period, hd, ad, row, col int, grid Grid) Candidate {
	c := Candidate{Period: period, CellID: -1, HomeDigit: hd, AwayDigit: ad}
	if row < 0 || col < 0 {
		return c
	}
	c.CellID = row*10 + col
	c.Owner = grid[c.CellID].Owner
	return c
}

func indexOf(xs [10]int, v int) int {
	for i, x := range xs {
		if x == v {
			return i
		}
	}
	return -1
}
