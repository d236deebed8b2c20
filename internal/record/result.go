package record

type Status string

const (
	StatusOK        Status = "OK"
	StatusNoResults Status = "NO_RESULTS"
	StatusError     Status = "ERROR"
)

const (
	KeyNoResults = "NO_RESULTS"
	KeyError     = "ERROR"
)

// ResultSet always holds at least one record: real records with StatusOK, or
// exactly one sentinel record explaining why there are none.
type ResultSet struct {
	Status  Status   `json:"status"`
	Count   int      `json:"count"`
	Records []Record `json:"records"`
}

func (rs ResultSet) IsSentinel() bool {
	return rs.Status != StatusOK
}

// Merge combines the records of every page and strategy of one search.
func Merge(sourceName string, pages ...[]Record) ResultSet {
	var all []Record
	for _, page := range pages {
		for _, r := range page {
			if r.IsSentinel() {
				continue
			}
			if r.SourceName == "" {
				r.SourceName = sourceName
			}
			all = append(all, r)
		}
	}
	merged := Dedupe(all)
	if len(merged) == 0 {
		return NoResults(sourceName)
	}
	return ResultSet{Status: StatusOK, Count: len(merged), Records: merged}
}

func NoResults(sourceName string) ResultSet {
	return ResultSet{
		Status: StatusNoResults,
		Count:  1,
		Records: []Record{{
			NaturalKey:     KeyNoResults,
			Title:          "No patents found",
			Abstract:       sourceName + " returned no results for this query",
			SourceStrategy: StrategySentinel,
			SourceName:     sourceName,
		}},
	}
}

// Failure wraps err into the ERROR sentinel. A nil err still produces a
// well-formed sentinel.
func Failure(sourceName string, err error) ResultSet {
	msg := "search failed"
	if err != nil {
		msg = err.Error()
	}
	return ResultSet{
		Status: StatusError,
		Count:  1,
		Records: []Record{{
			NaturalKey:     KeyError,
			Title:          "Search failed",
			Abstract:       msg,
			SourceStrategy: StrategySentinel,
			SourceName:     sourceName,
		}},
	}
}
