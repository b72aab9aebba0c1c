package models

import (
	"time"

	"github.com/pattern-run/pattern/internal/id"
)

// MemoryPermission governs which operations succeed on a MemoryBlock
// without consent, per the ACL table in SPEC_FULL.md §C.1.
type MemoryPermission string

const (
	PermissionReadOnly  MemoryPermission = "read_only"
	PermissionAppend    MemoryPermission = "append"
	PermissionReadWrite MemoryPermission = "read_write"
	PermissionHuman     MemoryPermission = "human"
	PermissionPartner   MemoryPermission = "partner"
	PermissionAdmin     MemoryPermission = "admin"
)

// MemoryType distinguishes memory blocks by how they are used, not by
// access control.
type MemoryType string

const (
	MemoryCore     MemoryType = "core"
	MemoryArchival MemoryType = "archival"
)

// MemoryBlock is a labeled unit of agent memory gated by MemoryPermission.
type MemoryBlock struct {
	ID         id.ID            `json:"id"`
	Label      string           `json:"label"`
	Value      string           `json:"value"`
	Type       MemoryType       `json:"type"`
	Permission MemoryPermission `json:"permission"`
	Owner      id.ID            `json:"owner"`
	Pinned     bool             `json:"pinned"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// MemorySearchResult is one hit from an agent's semantic memory search,
// the (label, block, score) triple the Agent Contract specifies.
type MemorySearchResult struct {
	Label string
	Block MemoryBlock
	Score float32
}
