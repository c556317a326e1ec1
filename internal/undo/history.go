package undo

import "time"

// historyVersion is bumped whenever the persisted shape changes
// incompatibly; a version mismatch on load discards the record.
const historyVersion = 1

// History is the persisted form of the undo/redo stacks. It is
// trustworthy only while StoreChecksum and StoreSize still match the
// live store file; any mismatch means another process changed the
// store and the whole record is discarded.
type History struct {
	Version       int       `json:"version"`
	StoreChecksum string    `json:"storeChecksum"`
	StoreSize     int64     `json:"storeSize"`
	UndoStack     []Command `json:"undoStack"`
	RedoStack     []Command `json:"redoStack"`
	SavedAt       time.Time `json:"savedAt"`
}

// HistoryStore persists one History record per store root.
type HistoryStore interface {
	// Load returns the persisted record, or (nil, nil) when none exists.
	Load() (*History, error)
	Save(h *History) error
	Clear() error
}
