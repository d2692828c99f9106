package cmd

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/content-crawler/internal/textutil"
)

const titleWidth = 60

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	return t
}

// renderJob prints the final status line, per-source stats, processing stats
// and, for ad-hoc crawls, the candidates.
func renderJob(out io.Writer, j *domain.CrawlJob) {
	fmt.Fprintf(out, "%s %s: %s (%s)\n", j.Operation, j.Status, j.Message,
		textutil.FormatDuration(j.Duration(time.Now())))
	if j.Error != "" {
		fmt.Fprintf(out, "error: %s\n", j.Error)
	}

	if j.Stats != nil && len(j.Stats.Sources) > 0 {
		t := newTable(out)
		t.AppendHeader(table.Row{"Source", "Attempted", "Inserted", "Updated", "Duplicates", "Failed", "Note"})
		ids := make([]string, 0, len(j.Stats.Sources))
		for id := range j.Stats.Sources {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			s := j.Stats.Sources[id]
			note := s.Skipped
			if s.Error != "" {
				note = s.Error
			}
			t.AppendRow(table.Row{id, s.Attempted, s.Inserted, s.Updated, s.Duplicates, s.Failed, note})
		}
		total := j.Stats.Total
		t.AppendFooter(table.Row{"Total", total.TotalProcessed, total.Successful, "", total.Duplicates, total.Failed, ""})
		t.Render()
	}

	if j.Stats != nil && j.Stats.Processing != nil {
		p := j.Stats.Processing
		t := newTable(out)
		t.AppendHeader(table.Row{"Attempted", "Scored", "Below threshold", "Failed", "Indexed"})
		t.AppendRow(table.Row{p.Attempted, p.Scored, p.BelowThreshold, p.Failed, p.Indexed})
		t.Render()
	}

	if len(j.Result) > 0 {
		renderCandidates(out, j.Result)
	}
}

func renderCandidates(out io.Writer, cands []domain.Candidate) {
	t := newTable(out)
	t.AppendHeader(table.Row{"Type", "Title", "Published", "URL"})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, WidthMax: titleWidth}})
	for _, c := range cands {
		published := ""
		if c.PublishedAt != nil {
			published = c.PublishedAt.UTC().Format(time.DateOnly)
		}
		t.AppendRow(table.Row{c.ContentType, textutil.Truncate(c.Title, titleWidth), published, c.URL})
	}
	t.Render()
}

func renderSources(out io.Writer, sources []domain.ContentSource) {
	t := newTable(out)
	t.AppendHeader(table.Row{"ID", "Type", "Name", "Base URL", "Active", "Last crawled"})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 5, Align: text.AlignCenter}})
	for _, s := range sources {
		last := "never"
		if s.LastCrawled != nil {
			last = s.LastCrawled.UTC().Format(time.RFC3339)
		}
		active := "no"
		if s.Active {
			active = "yes"
		}
		t.AppendRow(table.Row{s.ID, s.Type, s.Name, s.BaseURL, active, last})
	}
	t.Render()
}
