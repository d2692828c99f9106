package domain

// CrawlStats counts candidate outcomes for one source crawl.
// Attempted always equals Inserted+Updated+Duplicates+Failed.
type CrawlStats struct {
	Attempted  int `json:"attempted"`
	Inserted   int `json:"inserted"`
	Updated    int `json:"updated"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
	// Skipped is set when the source was busy or disabled and never crawled.
	Skipped string `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Successful is the number of candidates that changed the store.
func (s CrawlStats) Successful() int { return s.Inserted + s.Updated }

// Add merges o into s.
func (s *CrawlStats) Add(o CrawlStats) {
	s.Attempted += o.Attempted
	s.Inserted += o.Inserted
	s.Updated += o.Updated
	s.Duplicates += o.Duplicates
	s.Failed += o.Failed
}

// ProcessStats counts one quality-processing batch.
// Attempted always equals Scored+Failed; BelowThreshold is a subset of Scored.
type ProcessStats struct {
	Attempted      int `json:"attempted"`
	Scored         int `json:"scored"`
	BelowThreshold int `json:"below_threshold"`
	Failed         int `json:"failed"`
	Indexed        int `json:"indexed,omitempty"`
}

// Add merges o into s.
func (s *ProcessStats) Add(o ProcessStats) {
	s.Attempted += o.Attempted
	s.Scored += o.Scored
	s.BelowThreshold += o.BelowThreshold
	s.Failed += o.Failed
	s.Indexed += o.Indexed
}

// Totals aggregates every stage of a job.
// TotalProcessed always equals Successful+Failed+Duplicates.
type Totals struct {
	TotalProcessed int `json:"total_processed"`
	Successful     int `json:"successful"`
	Failed         int `json:"failed"`
	Duplicates     int `json:"duplicates"`
}

// JobStats is the per-stage breakdown of a job.
type JobStats struct {
	Sources    map[string]CrawlStats `json:"sources,omitempty"`
	Processing *ProcessStats         `json:"processing,omitempty"`
	Total      Totals                `json:"total"`
}

// NewJobStats returns empty stats ready for recording.
func NewJobStats() *JobStats {
	return &JobStats{Sources: make(map[string]CrawlStats)}
}

// RecordSource stores the outcome of one source crawl and recomputes totals.
func (s *JobStats) RecordSource(sourceID string, cs CrawlStats) {
	if s.Sources == nil {
		s.Sources = make(map[string]CrawlStats)
	}
	s.Sources[sourceID] = cs
	s.recompute()
}

// RecordProcessing stores the processing outcome and recomputes totals.
func (s *JobStats) RecordProcessing(ps ProcessStats) {
	p := ps
	s.Processing = &p
	s.recompute()
}

func (s *JobStats) recompute() {
	var t Totals
	for _, cs := range s.Sources {
		t.TotalProcessed += cs.Attempted
		t.Successful += cs.Successful()
		t.Failed += cs.Failed
		t.Duplicates += cs.Duplicates
	}
	if s.Processing != nil {
		t.TotalProcessed += s.Processing.Attempted
		t.Successful += s.Processing.Scored
		t.Failed += s.Processing.Failed
	}
	s.Total = t
}

// Clone deep-copies the stats.
func (s *JobStats) Clone() *JobStats {
	if s == nil {
		return nil
	}
	out := &JobStats{Total: s.Total}
	if s.Sources != nil {
		out.Sources = make(map[string]CrawlStats, len(s.Sources))
		for k, v := range s.Sources {
			out.Sources[k] = v
		}
	}
	if s.Processing != nil {
		p := *s.Processing
		out.Processing = &p
	}
	return out
}
