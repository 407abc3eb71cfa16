package model

import (
	"strings"
	"time"
)

// Ref is a lightweight reference to another document: an identifier plus a
// denormalized display name. The name is a convenience copy; the identifier is
// the only field used for equality.
type Ref struct {
	ID   string `bson:"id"   json:"id"`
	Name string `bson:"name" json:"name"`
}

// Associations holds the directed provenance relationships of an Entity.
// If Entity A lists Entity B in Products, B must list A in Origins (and vice
// versa). The reconciler maintains this symmetric closure.
type Associations struct {
	Origins  []Ref `bson:"origins"  json:"origins"`
	Products []Ref `bson:"products" json:"products"`
}

// ValueType enumerates the data types an Attribute value can hold.
type ValueType string

const (
	ValueTypeText   ValueType = "text"
	ValueTypeNumber ValueType = "number"
	ValueTypeDate   ValueType = "date"
	ValueTypeURL    ValueType = "url"
	ValueTypeSelect ValueType = "select"
	ValueTypeEntity ValueType = "entity"
)

// SelectData is the payload of a "select" typed value.
type SelectData struct {
	Options  []string `bson:"options"  json:"options"`
	Selected string   `bson:"selected" json:"selected"`
}

// Value is a single datum within an Attribute.
type Value struct {
	ID   string    `bson:"id"   json:"id"`
	Name string    `bson:"name" json:"name"`
	Type ValueType `bson:"type" json:"type"`
	Data any       `bson:"data" json:"data"`
}

// Attribute is either a standalone Template document or an inline instance
// attached to an Entity. Inline instances are owned exclusively by their
// Entity: attaching a Template copies it, it never shares a mutable reference.
type Attribute struct {
	ID          string    `bson:"_id"         json:"_id"`
	Name        string    `bson:"name"        json:"name"`
	Owner       string    `bson:"owner"       json:"owner"`
	Timestamp   time.Time `bson:"timestamp"   json:"timestamp"`
	Archived    bool      `bson:"archived"    json:"archived"`
	Description string    `bson:"description" json:"description"`
	Values      []Value   `bson:"values"      json:"values"`
}

// Entity is the primary data record managed by the service.
type Entity struct {
	ID           string           `bson:"_id"          json:"_id"`
	Name         string           `bson:"name"         json:"name"`
	Owner        string           `bson:"owner"        json:"owner"`
	Created      time.Time        `bson:"created"      json:"created"`
	Archived     bool             `bson:"archived"     json:"archived"`
	Deleted      bool             `bson:"deleted"      json:"deleted"`
	Description  string           `bson:"description"  json:"description"`
	Projects     []string         `bson:"projects"     json:"projects"`
	Collections  []string         `bson:"collections"  json:"collections"`
	Associations Associations     `bson:"associations" json:"associations"`
	Attributes   []Attribute      `bson:"attributes"   json:"attributes"`
	Attachments  []Ref            `bson:"attachments"  json:"attachments"`
	History      []EntitySnapshot `bson:"history"      json:"history"`
}

// Ref returns the {id,name} reference for this Entity.
func (e *Entity) Ref() Ref { return Ref{ID: e.ID, Name: e.Name} }

// EntitySnapshot captures the mutable fields of an Entity at one point in
// time. Snapshots are prepended to Entity.History on every update and are
// never mutated or individually removed afterwards.
type EntitySnapshot struct {
	Version      string       `bson:"version"      json:"version"`
	Timestamp    time.Time    `bson:"timestamp"    json:"timestamp"`
	Author       string       `bson:"author"       json:"author"`
	Message      string       `bson:"message"      json:"message"`
	Name         string       `bson:"name"         json:"name"`
	Description  string       `bson:"description"  json:"description"`
	Projects     []string     `bson:"projects"     json:"projects"`
	Collections  []string     `bson:"collections"  json:"collections"`
	Associations Associations `bson:"associations" json:"associations"`
	Attributes   []Attribute  `bson:"attributes"   json:"attributes"`
}

// Project groups Entities and Collaborators under one owner.
// Project.Entities and Entity.Projects are mirror sets.
type Project struct {
	ID            string            `bson:"_id"           json:"_id"`
	Name          string            `bson:"name"          json:"name"`
	Owner         string            `bson:"owner"         json:"owner"`
	Created       time.Time         `bson:"created"       json:"created"`
	Archived      bool              `bson:"archived"      json:"archived"`
	Deleted       bool              `bson:"deleted"       json:"deleted"`
	Description   string            `bson:"description"   json:"description"`
	Entities      []string          `bson:"entities"      json:"entities"`
	Collaborators []string          `bson:"collaborators" json:"collaborators"`
	History       []ProjectSnapshot `bson:"history"       json:"history"`
}

// ProjectSnapshot captures the mutable fields of a Project at one point in time.
type ProjectSnapshot struct {
	Version       string    `bson:"version"       json:"version"`
	Timestamp     time.Time `bson:"timestamp"     json:"timestamp"`
	Author        string    `bson:"author"        json:"author"`
	Name          string    `bson:"name"          json:"name"`
	Description   string    `bson:"description"   json:"description"`
	Entities      []string  `bson:"entities"      json:"entities"`
	Collaborators []string  `bson:"collaborators" json:"collaborators"`
}

// Collection is a loose grouping of Entities. Collection.Entities and
// Entity.Collections are mirror sets.
type Collection struct {
	ID          string               `bson:"_id"         json:"_id"`
	Name        string               `bson:"name"        json:"name"`
	Owner       string               `bson:"owner"       json:"owner"`
	Created     time.Time            `bson:"created"     json:"created"`
	Archived    bool                 `bson:"archived"    json:"archived"`
	Deleted     bool                 `bson:"deleted"     json:"deleted"`
	Description string               `bson:"description" json:"description"`
	Entities    []string             `bson:"entities"    json:"entities"`
	History     []CollectionSnapshot `bson:"history"     json:"history"`
}

// CollectionSnapshot captures the mutable fields of a Collection at one point in time.
type CollectionSnapshot struct {
	Version     string    `bson:"version"     json:"version"`
	Timestamp   time.Time `bson:"timestamp"   json:"timestamp"`
	Author      string    `bson:"author"      json:"author"`
	Name        string    `bson:"name"        json:"name"`
	Description string    `bson:"description" json:"description"`
	Entities    []string  `bson:"entities"    json:"entities"`
}

// ActivityType classifies audit trail records.
type ActivityType string

const (
	ActivityCreate   ActivityType = "create"
	ActivityUpdate   ActivityType = "update"
	ActivityDelete   ActivityType = "delete"
	ActivityArchived ActivityType = "archived"
)

// ActivityTarget identifies the document an Activity record refers to.
type ActivityTarget struct {
	Type string `bson:"type" json:"type"`
	ID   string `bson:"id"   json:"id"`
	Name string `bson:"name" json:"name"`
}

// Activity is one append-only audit trail record. Records are written as a
// side effect of lifecycle operations and never updated afterwards.
type Activity struct {
	ID        string         `bson:"_id"       json:"_id"`
	Timestamp time.Time      `bson:"timestamp" json:"timestamp"`
	Type      ActivityType   `bson:"type"      json:"type"`
	Actor     string         `bson:"actor"     json:"actor"`
	Details   string         `bson:"details"   json:"details"`
	Target    ActivityTarget `bson:"target"    json:"target"`
}

// Result is the uniform operation envelope returned across the domain boundary.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// OK builds a successful Result.
func OK(message string, data any) Result {
	return Result{Success: true, Message: message, Data: data}
}

// Fail builds an unsuccessful Result.
func Fail(message string) Result {
	return Result{Success: false, Message: message}
}

// CleanNames trims surrounding whitespace from the caller-supplied name and
// description fields of a draft Entity.
func (e *Entity) CleanNames() {
	e.Name = strings.TrimSpace(e.Name)
	e.Description = strings.TrimSpace(e.Description)
}

// RefIDs extracts the identifiers from a list of references.
func RefIDs(refs []Ref) []string {
	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.ID
	}
	return ids
}

// ContainsRef reports whether refs contains a reference with the given ID.
func ContainsRef(refs []Ref, id string) bool {
	for _, r := range refs {
		if r.ID == id {
			return true
		}
	}
	return false
}
