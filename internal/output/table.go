package output

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

// RenderSummary prints the summary as a table.
func RenderSummary(w io.Writer, s *Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Crawl summary: " + s.Target)

	t.AppendRow(table.Row{"Run", s.RunID})
	t.AppendRow(table.Row{"Result", s.Reason})
	t.AppendRow(table.Row{"Duration", s.Duration.Round(time.Millisecond)})
	t.AppendRow(table.Row{"Pages crawled", s.PagesCrawled})
	t.AppendRow(table.Row{"Failures", s.Failures})
	t.AppendRow(table.Row{"Pages/sec", fmt.Sprintf("%.2f", s.PagesPerSecond())})
	t.AppendSeparator()
	t.AppendRow(table.Row{"Links relative", s.Links.Relative})
	t.AppendRow(table.Row{"Links absolute", s.Links.Absolute})
	t.AppendRow(table.Row{"Links blacklisted", s.Links.Blacklisted})
	t.AppendRow(table.Row{"Links off-site", s.Links.OffSite})
	t.AppendRow(table.Row{"Links queued", s.Links.Pushed})
	t.AppendSeparator()
	t.AppendRow(table.Row{"State mode", s.Mode.Mode})
	if s.Mode.SwitchReason != "" {
		t.AppendRow(table.Row{"Switched", s.Mode.SwitchReason + " at " + s.Mode.SwitchedAt.Format(time.RFC3339)})
	}
	t.AppendRow(table.Row{"Visited", s.Visited})
	t.AppendRow(table.Row{"Pending", s.Pending})
	t.AppendRow(table.Row{"Buffer flushes", s.Buffer.Flushes})
	t.AppendRow(table.Row{"Cache errors", s.CacheErrors})
	if s.Screenshots > 0 {
		t.AppendRow(table.Row{"Screenshots", s.Screenshots})
	}

	t.Render()

	if len(s.StatusCodes) > 0 {
		RenderStatusCodes(w, s.StatusCodes)
	}
}

// RenderStatusCodes prints the status code tally. Code 0 is shown as a
// transport error.
func RenderStatusCodes(w io.Writer, codes map[int]int) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Status", "Count"})

	for _, code := range sortedCodes(codes) {
		label := strconv.Itoa(code)
		if code == 0 {
			label = "transport error"
		}
		t.AppendRow(table.Row{label, codes[code]})
	}
	t.Render()
}

func sortedCodes(codes map[int]int) []int {
	keys := make([]int, 0, len(codes))
	for code := range codes {
		keys = append(keys, code)
	}
	sort.Ints(keys)
	return keys
}
