package output

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/textlens/textlens/internal/core"
)

// grid is the tabular view shared by the table and markdown formatters.
type grid struct {
	title  string
	header []string
	rows   [][]string
	footer string
}

func resultGrid(result *Result) grid {
	g := grid{title: result.Operation}

	switch v := result.Value.(type) {
	case core.Summary:
		g.header = []string{"Field", "Value"}
		g.rows = [][]string{
			{"Summary", v.Summary},
			{"Topics", strings.Join(v.Topics, ", ")},
			{"Confidence", formatFloat(v.Confidence)},
		}
	case core.Sentiment:
		g.header = []string{"Emotion", "Sentence"}
		for _, s := range v.Sentences {
			g.rows = append(g.rows, []string{s.Emotion, s.Text})
		}
		g.footer = fmt.Sprintf("dominant: %s (%s)", v.Dominant, formatFloat(v.Confidence))
	case core.Answer:
		g.header = []string{"Field", "Value"}
		g.rows = [][]string{
			{"Answer", v.Answer},
			{"Confidence", formatFloat(v.Confidence)},
			{"Context", v.Context},
			{"Words analyzed", strconv.Itoa(v.Metrics.WordsAnalyzed)},
			{"Sentences analyzed", strconv.Itoa(v.Metrics.SentencesAnalyzed)},
			{"Match quality", strconv.Itoa(v.Metrics.MatchQuality)},
		}
	case []string:
		g.header = []string{"#", "Question"}
		for i, q := range v {
			g.rows = append(g.rows, []string{strconv.Itoa(i + 1), q})
		}
	case string:
		g.header = []string{"Question"}
		g.rows = [][]string{{v}}
	default:
		data, err := json.Marshal(v)
		if err != nil {
			data = []byte(fmt.Sprint(v))
		}
		g.header = []string{"Result"}
		g.rows = [][]string{{string(data)}}
	}
	return g
}

func statusGrid(status *Status) grid {
	g := grid{title: "status", header: []string{"Metric", "Value"}}
	add := func(name string, value any) {
		g.rows = append(g.rows, []string{name, fmt.Sprint(value)})
	}

	if status.Online {
		add("Connectivity", "online")
	} else {
		add("Connectivity", "offline")
	}
	if status.Removed != nil {
		add("Removed", *status.Removed)
	}
	if c := status.Cache; c != nil {
		add("Cache entries", c.Entries)
		add("Cache live", c.Live)
		add("Cache expired", c.Expired)
		add("Cache corrupt", c.Corrupt)
		add("Cache TTL", c.TTL)
	}
	if q := status.Queue; q != nil {
		add("Queue state", q.State)
		add("Queue pending", q.Pending)
		add("Queue in flight", q.InFlight)
		add("Queue peak in flight", q.PeakInFlight)
		add("Requests completed", q.Completed)
		add("Requests failed", q.Failed)
	}

	names := make([]string, 0, len(status.Throttle))
	for name := range status.Throttle {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := status.Throttle[name]
		add("Throttle "+name, fmt.Sprintf("%d runs, %d superseded, %d coalesced", s.Runs, s.Superseded, s.Coalesced))
	}
	return g
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
