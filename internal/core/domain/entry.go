package domain

import "time"

// Entry is the value and metadata kept for one key.
//
// Entries are treated as immutable once stored: updates produce a new Entry
// so a concurrent reader never sees Value and Size out of step.
type Entry struct {
	Value     []byte    `json:"value"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntry creates the entry for a key's first successful put.
func NewEntry(value []byte, now time.Time) *Entry {
	return &Entry{
		Value:     value,
		Size:      len(value),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Update returns the successor of e holding value.
//
// CreatedAt is preserved. UpdatedAt always moves forward, even when the wall
// clock stands still or steps backwards between two puts.
func (e *Entry) Update(value []byte, now time.Time) *Entry {
	if !now.After(e.UpdatedAt) {
		now = e.UpdatedAt.Add(time.Nanosecond)
	}
	return &Entry{
		Value:     value,
		Size:      len(value),
		CreatedAt: e.CreatedAt,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	if e.Value != nil {
		c.Value = make([]byte, len(e.Value))
		copy(c.Value, e.Value)
	}
	return &c
}

// PutResult tells whether a put inserted a new key or replaced an existing one.
type PutResult int

const (
	Created PutResult = iota + 1
	Updated
)

func (r PutResult) String() string {
	switch r {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return "unknown"
	}
}

// DeleteResult tells whether a delete removed a key.
type DeleteResult int

const (
	Deleted DeleteResult = iota + 1
	NotFound
)

func (r DeleteResult) String() string {
	switch r {
	case Deleted:
		return "deleted"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Stats is a point-in-time view of an engine's contents and activity.
type Stats struct {
	KeyCount        int    `json:"key_count"`
	MemoryUsage     int64  `json:"memory_usage"`
	TotalOperations uint64 `json:"total_operations"`
	Reads           uint64 `json:"reads"`
	Writes          uint64 `json:"writes"`
	Deletes         uint64 `json:"deletes"`
}

// DetailedStats extends Stats with backend and durability information.
type DetailedStats struct {
	Stats
	Backend          string `json:"backend"`
	WALPath          string `json:"wal_path,omitempty"`
	WALSize          int64  `json:"wal_size,omitempty"`
	WALRecords       uint64 `json:"wal_records,omitempty"`
	Sequence         uint64 `json:"sequence,omitempty"`
	ChecksumsEnabled bool   `json:"checksums_enabled"`
	Encrypted        bool   `json:"encrypted"`
	LSMSize          int64  `json:"lsm_size,omitempty"`
	ValueLogSize     int64  `json:"value_log_size,omitempty"`
}

// CompactionResult reports what a log compaction reclaimed.
type CompactionResult struct {
	EntriesBefore uint64        `json:"entries_before"`
	EntriesAfter  uint64        `json:"entries_after"`
	BytesBefore   int64         `json:"bytes_before"`
	BytesAfter    int64         `json:"bytes_after"`
	Duration      time.Duration `json:"duration"`
}
