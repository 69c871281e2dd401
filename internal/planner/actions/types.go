// Package actions turns the loosely-typed tool calls emitted by the planning
// assistant into canonical, individually reviewable actions.
//
// A proposal travels through three pure steps before anything touches the
// backend:
//
//  1. Normalize maps the tool name and payload onto an {EntityType, Operation}
//     pair, tolerating legacy tool names and ad hoc payload shapes.
//  2. Expand splits bulk proposals (bulk_create, task bulk_edit) into one
//     action per element, preserving the source call so every child is
//     acknowledged against the same upstream call.
//  3. Summarize derives a title and description for review screens.
//
// FromFeed runs the whole pipeline over a feed snapshot and assigns the
// stable ClientIDs the confirmation store merges on.
package actions

import (
	"maps"
	"slices"
)

// EntityType is the kind of domain entity an action targets.
type EntityType string

const (
	TypeTask            EntityType = "task"
	TypeNote            EntityType = "note"
	TypeShopping        EntityType = "shopping"
	TypeShoppingSection EntityType = "shoppingSection"
	TypeSurvey          EntityType = "survey"
	TypeContact         EntityType = "contact"
	TypeHabit           EntityType = "habit"
)

// EntityTypes lists every supported entity type in display order.
var EntityTypes = []EntityType{
	TypeTask, TypeNote, TypeShopping, TypeShoppingSection, TypeSurvey, TypeContact, TypeHabit,
}

// Valid reports whether t is one of the supported entity types.
func (t EntityType) Valid() bool {
	return slices.Contains(EntityTypes, t)
}

// Operation is what an action does to its entity.
type Operation string

const (
	OpCreate     Operation = "create"
	OpEdit       Operation = "edit"
	OpDelete     Operation = "delete"
	OpBulkCreate Operation = "bulk_create"
	OpBulkEdit   Operation = "bulk_edit"
	OpComplete   Operation = "complete"
)

var operations = []Operation{OpCreate, OpEdit, OpDelete, OpBulkCreate, OpBulkEdit, OpComplete}

// Valid reports whether o is one of the supported operations.
func (o Operation) Valid() bool {
	return slices.Contains(operations, o)
}

// Status is the review state of an action. Pending is the only non-terminal
// state; no transition leaves Confirmed or Rejected.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
)

// Terminal reports whether s is confirmed or rejected.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusRejected
}

// FeedStatus is the resolution recorded upstream for a raw tool call.
// The empty value means the call is still awaiting a decision.
type FeedStatus string

const (
	FeedPending   FeedStatus = ""
	FeedConfirmed FeedStatus = "confirmed"
	FeedRejected  FeedStatus = "rejected"
	// FeedReplayed calls were re-delivered by the agent runtime and have
	// already been handled; they are not shown for review.
	FeedReplayed FeedStatus = "replayed"
)

// RawToolCall is one proposal as stored in a thread's tool-call feed.
type RawToolCall struct {
	CallID       string     `json:"callId"`
	FunctionName string     `json:"functionName"`
	Arguments    string     `json:"arguments"`
	ResponseID   string     `json:"responseId"`
	Status       FeedStatus `json:"status,omitempty"`
	// Resolved holds per-item resolutions (keyed by ClientID) for calls that
	// expand into several actions and are only partially decided.
	Resolved map[string]Status `json:"resolved,omitempty"`
}

// FunctionCall is the back-reference from an action to its source call.
type FunctionCall struct {
	CallID       string `json:"callId"`
	FunctionName string `json:"functionName"`
	Arguments    string `json:"arguments"`
}

// Selection identifies the targets of a bulk edit: either an explicit id
// list or every item matching the agent's stated reason.
type Selection struct {
	IDs        []string `json:"ids,omitempty"`
	ApplyToAll bool     `json:"applyToAll,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// Empty reports whether the selection targets nothing.
func (s *Selection) Empty() bool {
	return s == nil || (len(s.IDs) == 0 && !s.ApplyToAll)
}

// Action is the canonical, reviewable representation of one change.
type Action struct {
	ClientID     string         `json:"clientId"`
	Type         EntityType     `json:"type"`
	Operation    Operation      `json:"operation"`
	Data         map[string]any `json:"data,omitempty"`
	Updates      map[string]any `json:"updates,omitempty"`
	OriginalItem map[string]any `json:"originalItem,omitempty"`
	Selection    *Selection     `json:"selection,omitempty"`
	FunctionCall *FunctionCall  `json:"functionCall,omitempty"`
	ResponseID   string         `json:"responseId,omitempty"`
	Status       Status         `json:"status"`
	// Unrecognized is set when neither the payload nor the tool name named a
	// known entity type and the action fell back to {task, create}.
	Unrecognized bool `json:"unrecognized,omitempty"`
}

// Pending reports whether the action still awaits a decision.
func (a Action) Pending() bool {
	return !a.Status.Terminal()
}

// CallID returns the source call id, or "" for synthesized actions.
func (a Action) CallID() string {
	if a.FunctionCall == nil {
		return ""
	}
	return a.FunctionCall.CallID
}

// Clone returns a copy whose maps and selection can be modified without
// affecting a.
func (a Action) Clone() Action {
	out := a
	out.Data = cloneMap(a.Data)
	out.Updates = cloneMap(a.Updates)
	out.OriginalItem = cloneMap(a.OriginalItem)
	if a.Selection != nil {
		sel := *a.Selection
		sel.IDs = slices.Clone(a.Selection.IDs)
		out.Selection = &sel
	}
	if a.FunctionCall != nil {
		fc := *a.FunctionCall
		out.FunctionCall = &fc
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}
