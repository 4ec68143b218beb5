package client

import (
	"fmt"

	"github.com/tendant/simple-upload/pkg/simpleupload"
)

// State is the lifecycle position of one file in a batch.
type State string

const (
	StatePending     State = "pending"
	StateAuthorizing State = "authorizing"
	StateSubmitting  State = "submitting"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// transitions lists the legal successors of every state. Done and Failed are terminal.
var transitions = map[State][]State{
	StatePending:     {StateAuthorizing, StateFailed},
	StateAuthorizing: {StateSubmitting, StateFailed},
	StateSubmitting:  {StateDone, StateFailed},
}

// CanTransition reports whether a file may move from one state to another.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// Item is the outcome of one file.
type Item struct {
	Index  int
	Name   string
	State  State
	Result *simpleupload.UploadResult
	Err    error
}

// Batch tracks a sequential multi-file submission.
type Batch struct {
	ID    string
	Items []*Item
	err   error
}

func newBatch(id string, files []simpleupload.File) *Batch {
	b := &Batch{ID: id, Items: make([]*Item, len(files))}
	for i, f := range files {
		b.Items[i] = &Item{Index: i, Name: f.Name, State: StatePending}
	}
	return b
}

func (b *Batch) advance(item *Item, to State, observer StateObserver) {
	if !CanTransition(item.State, to) {
		panic(fmt.Sprintf("client: illegal transition %s -> %s for file %d", item.State, to, item.Index))
	}
	item.State = to
	if observer != nil {
		observer(*item)
	}
}

func (b *Batch) fail(item *Item, err error, observer StateObserver) {
	item.Err = err
	b.err = &simpleupload.FileError{Index: item.Index, Name: item.Name, Err: err}
	b.advance(item, StateFailed, observer)
}

// Err returns the failure that stopped the batch, attributed to its file, or nil.
func (b *Batch) Err() error {
	return b.err
}

// Results returns one result per file in input order, or nil unless every file is done.
func (b *Batch) Results() []*simpleupload.UploadResult {
	if b.err != nil {
		return nil
	}
	results := make([]*simpleupload.UploadResult, 0, len(b.Items))
	for _, item := range b.Items {
		if item.State != StateDone {
			return nil
		}
		results = append(results, item.Result)
	}
	return results
}

// Outcomes returns the items that left Pending, in input order: everything up to and including the
// first failure.
func (b *Batch) Outcomes() []Item {
	var out []Item
	for _, item := range b.Items {
		if item.State == StatePending {
			continue
		}
		out = append(out, *item)
	}
	return out
}
