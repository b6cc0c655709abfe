package pipeline

// Query is answered in place by the handler which returns true.
type Query interface {
	isQuery()
}

type QueryDuration struct {
	Format   Format
	Duration int64
}

type QuerySeeking struct {
	Format   Format
	Seekable bool
	Start    int64
	End      int64
}

type QueryScheduling struct {
	Seekable bool
	Modes    []PadMode
}

func (*QueryDuration) isQuery()   {}
func (*QuerySeeking) isQuery()    {}
func (*QueryScheduling) isQuery() {}

func (q *QueryScheduling) HasMode(mode PadMode) bool {
	for _, m := range q.Modes {
		if m == mode {
			return true
		}
	}
	return false
}
