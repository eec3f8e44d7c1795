package risk

// Level is a severity tier assigned to an exposure.
type Level string

const (
	Low      Level = "LOW"
	Medium   Level = "MEDIUM"
	High     Level = "HIGH"
	Critical Level = "CRITICAL"
)

// severityWeights drive the aggregate risk score.
var severityWeights = map[Level]int{
	Low:      1,
	Medium:   3,
	High:     6,
	Critical: 10,
}

// Weight returns the scoring weight for the level; unknown levels
// contribute nothing.
func (l Level) Weight() int {
	return severityWeights[l]
}

// rank orders levels for comparisons. Higher is worse.
func (l Level) rank() int {
	switch l {
	case Critical:
		return 4
	case High:
		return 3
	case Medium:
		return 2
	case Low:
		return 1
	}
	return 0
}

// WorseThan reports whether l is a more severe tier than other.
func (l Level) WorseThan(other Level) bool {
	return l.rank() > other.rank()
}
