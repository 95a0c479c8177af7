package calibration

// Collector accumulates samples for one anchor at a time and reduces them
// to a record per anchor. The UI decides when a fixation starts and stops;
// the collector only aggregates.
type Collector struct {
	open *Record
	set  Set
}

// NewCollector creates a collector with an empty set.
func NewCollector() *Collector {
	return &Collector{set: make(Set)}
}

// NewCollectorFrom starts from an existing set so individual anchors can
// be redone without repeating the whole calibration.
func NewCollectorFrom(set Set) *Collector {
	return &Collector{set: set.Clone()}
}

// BeginAnchor opens a fresh record for a, discarding any unsealed one.
func (c *Collector) BeginAnchor(a Anchor) {
	c.open = &Record{Anchor: a.Name}
}

// AddSample folds s into the open record.
func (c *Collector) AddSample(s RawSample) error {
	if c.open == nil {
		return ErrNoActiveAnchor
	}
	c.open.add(s)
	return nil
}

// EndAnchor seals the open record into the set and returns how many
// samples it holds. A zero count is sealed as-is; building a Model from
// it fails later.
func (c *Collector) EndAnchor() (int, error) {
	if c.open == nil {
		return 0, ErrNoActiveAnchor
	}
	rec := *c.open
	c.open = nil
	c.set[rec.Anchor] = rec
	return rec.Count, nil
}

// Active returns the name of the open anchor, if any.
func (c *Collector) Active() (string, bool) {
	if c.open == nil {
		return "", false
	}
	return c.open.Anchor, true
}

// Record returns the sealed record for name.
func (c *Collector) Record(name string) (Record, bool) {
	rec, ok := c.set[name]
	return rec, ok
}

// Set returns a copy of all sealed records.
func (c *Collector) Set() Set {
	return c.set.Clone()
}
