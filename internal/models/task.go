package models

import (
	"encoding/json"
	"errors"
	"strings"
)

// OrderMode controls how clients display an owner's tasks.
type OrderMode string

const (
	OrderInsertion    OrderMode = "insertion"
	OrderAlphabetical OrderMode = "alphabetical"
)

// ParseOrderMode accepts the current names and the older "default"/"alpha" aliases.
func ParseOrderMode(s string) (OrderMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "insertion", "default":
		return OrderInsertion, true
	case "alphabetical", "alpha":
		return OrderAlphabetical, true
	}
	return "", false
}

// LegacyName is the value older clients expect in X-Sort-Mode.
func (m OrderMode) LegacyName() string {
	if m == OrderAlphabetical {
		return "alpha"
	}
	return "default"
}

type Task struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	Done      bool   `json:"done"`
	Favorite  bool   `json:"favorite"`
	CreatedAt int64  `json:"createdAt,omitempty"` // unix millis
}

// TaskPatch carries the fields of a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Text     *string
	Done     *bool
	Favorite *bool
}

// Collection is one owner's task list. It is the unit of persistence and broadcast.
type Collection struct {
	Tasks     []Task    `json:"tasks"`
	OrderMode OrderMode `json:"orderMode"`
}

// EmptyCollection returns a collection with a non-nil task slice.
func EmptyCollection() Collection {
	return Collection{Tasks: []Task{}, OrderMode: OrderInsertion}
}

// Clone returns a deep copy so callers never share the backing array.
func (c Collection) Clone() Collection {
	tasks := make([]Task, len(c.Tasks))
	copy(tasks, c.Tasks)
	mode := c.OrderMode
	if mode == "" {
		mode = OrderInsertion
	}
	return Collection{Tasks: tasks, OrderMode: mode}
}

// MaxID returns the largest task id, or 0 for an empty list.
func (c Collection) MaxID() int64 {
	var max int64
	for _, t := range c.Tasks {
		if t.ID > max {
			max = t.ID
		}
	}
	return max
}

// IndexOf returns the position of the task with id, or -1.
func (c Collection) IndexOf(id int64) int {
	for i, t := range c.Tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// storedCollection covers both the current file shape and the
// {todos, sortMode} shape written by earlier releases.
type storedCollection struct {
	Tasks     []Task  `json:"tasks"`
	OrderMode string  `json:"orderMode"`
	Todos     *[]Task `json:"todos"`
	SortMode  string  `json:"sortMode"`
}

var ErrCorruptCollection = errors.New("task file is neither an object nor a list")

// DecodeCollection reads a task file. A bare array is the legacy format and
// loads with insertion order.
func DecodeCollection(data []byte) (Collection, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return EmptyCollection(), nil
	}

	switch trimmed[0] {
	case '[':
		var tasks []Task
		if err := json.Unmarshal(data, &tasks); err != nil {
			return Collection{}, err
		}
		c := Collection{Tasks: tasks, OrderMode: OrderInsertion}
		return c.Clone(), nil
	case '{':
		var stored storedCollection
		if err := json.Unmarshal(data, &stored); err != nil {
			return Collection{}, err
		}
		c := Collection{Tasks: stored.Tasks}
		if stored.Tasks == nil && stored.Todos != nil {
			c.Tasks = *stored.Todos
		}
		mode := stored.OrderMode
		if mode == "" {
			mode = stored.SortMode
		}
		if m, ok := ParseOrderMode(mode); ok {
			c.OrderMode = m
		}
		return c.Clone(), nil
	}
	return Collection{}, ErrCorruptCollection
}
