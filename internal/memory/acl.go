package memory

import "github.com/pattern-run/pattern/pkg/models"

// Op is an operation attempted against a memory block.
type Op string

const (
	OpRead      Op = "read"
	OpAppend    Op = "append"
	OpOverwrite Op = "overwrite"
	OpDelete    Op = "delete"
)

// Gate is the outcome of checking an Op against a MemoryPermission.
type Gate string

const (
	GateAllow          Gate = "allow"
	GateRequireConsent Gate = "require_consent"
	GateDeny           Gate = "deny"
)

// Check evaluates op against permission, the exact ACL matrix:
//
//	Read:      always Allow
//	Append:    Allow for Append/ReadWrite/Admin, RequireConsent for
//	           Human/Partner, Deny for ReadOnly
//	Overwrite: Allow for ReadWrite/Admin, RequireConsent for
//	           Human/Partner, Deny for Append/ReadOnly
//	Delete:    Allow only for Admin, Deny otherwise
func Check(permission models.MemoryPermission, op Op) Gate {
	if op == OpRead {
		return GateAllow
	}
	if op == OpDelete {
		if permission == models.PermissionAdmin {
			return GateAllow
		}
		return GateDeny
	}
	switch permission {
	case models.PermissionAdmin, models.PermissionReadWrite:
		return GateAllow
	case models.PermissionHuman, models.PermissionPartner:
		return GateRequireConsent
	case models.PermissionAppend:
		if op == OpAppend {
			return GateAllow
		}
		return GateDeny
	case models.PermissionReadOnly:
		return GateDeny
	default:
		return GateDeny
	}
}
