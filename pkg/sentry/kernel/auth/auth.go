// Package auth implements an access control model that is a subset of Linux's.
//
// The auth package supports two kinds of access controls: user/group IDs and
// capabilities. Namespaces are not modelled; every ID is a kernel ID.
package auth

import (
	"fmt"

	"github.com/moby/sys/capability"
)

// KUID is a kernel user ID.
type KUID uint32

// KGID is a kernel group ID.
type KGID uint32

const (
	// RootKUID is the KUID of the superuser.
	RootKUID KUID = 0

	// RootKGID is the KGID of the superuser's group.
	RootKGID KGID = 0
)

// A CapabilitySet is a set of capabilities.
type CapabilitySet uint64

// CapabilitySetOf returns a CapabilitySet containing only the given
// capability.
func CapabilitySetOf(cp capability.Cap) CapabilitySet {
	return CapabilitySet(1) << uint(cp)
}

// CapabilitySetOfMany returns a CapabilitySet containing the given
// capabilities.
func CapabilitySetOfMany(cps []capability.Cap) CapabilitySet {
	var cs CapabilitySet
	for _, cp := range cps {
		cs |= CapabilitySetOf(cp)
	}
	return cs
}

// AllCapabilities is a CapabilitySet containing all capabilities known to
// this build.
var AllCapabilities = CapabilitySetOfMany(capability.ListKnown())

// Has returns true if cp is in cs.
func (cs CapabilitySet) Has(cp capability.Cap) bool {
	return cs&CapabilitySetOf(cp) != 0
}

// Credentials contains information required to authorize privileged
// operations in a user namespace.
//
// Credentials are copy-on-write: once shared between tasks they must not be
// mutated. Use Fork to obtain a private copy.
type Credentials struct {
	// Real/effective/saved user/group IDs.
	RealKUID      KUID
	EffectiveKUID KUID
	SavedKUID     KUID
	RealKGID      KGID
	EffectiveKGID KGID
	SavedKGID     KGID

	// Filesystem user/group IDs are not implemented. "... you might have
	// guessed that 'fsuid' doesn't actually get used anywhere these days" -
	// Linus Torvalds.

	// ExtraKGIDs is the set of supplementary groups.
	ExtraKGIDs []KGID

	// The capability sets applicable to this set of credentials.
	PermittedCaps   CapabilitySet
	InheritableCaps CapabilitySet
	EffectiveCaps   CapabilitySet
	BoundingCaps    CapabilitySet

	// KeepCaps is the flag for PR_SET_KEEPCAPS which allow capabilities to be
	// maintained after a switch from root user to non-root user via setuid().
	KeepCaps bool
}

// NewRootCredentials returns credentials with all capabilities and the
// superuser's IDs.
func NewRootCredentials() *Credentials {
	return &Credentials{
		RealKUID:      RootKUID,
		EffectiveKUID: RootKUID,
		SavedKUID:     RootKUID,
		RealKGID:      RootKGID,
		EffectiveKGID: RootKGID,
		SavedKGID:     RootKGID,
		PermittedCaps: AllCapabilities,
		EffectiveCaps: AllCapabilities,
		BoundingCaps:  AllCapabilities,
	}
}

// NewUserCredentials returns credentials for the given uid and gid with no
// capabilities (or all capabilities for root).
func NewUserCredentials(kuid KUID, kgid KGID, extraKGIDs []KGID) *Credentials {
	creds := NewRootCredentials()
	creds.RealKUID, creds.EffectiveKUID, creds.SavedKUID = kuid, kuid, kuid
	creds.RealKGID, creds.EffectiveKGID, creds.SavedKGID = kgid, kgid, kgid
	creds.ExtraKGIDs = append([]KGID(nil), extraKGIDs...)
	if kuid != RootKUID {
		creds.PermittedCaps = 0
		creds.EffectiveCaps = 0
	}
	return creds
}

// InGroup returns true if c is in group kgid.
func (c *Credentials) InGroup(kgid KGID) bool {
	if c.EffectiveKGID == kgid {
		return true
	}
	for _, extraKGID := range c.ExtraKGIDs {
		if extraKGID == kgid {
			return true
		}
	}
	return false
}

// HasCapability returns true if c has cp in its effective set.
func (c *Credentials) HasCapability(cp capability.Cap) bool {
	return c.EffectiveCaps.Has(cp)
}

// String implements fmt.Stringer.String.
func (c *Credentials) String() string {
	return fmt.Sprintf("uid=%d/%d/%d gid=%d/%d/%d", c.RealKUID, c.EffectiveKUID, c.SavedKUID, c.RealKGID, c.EffectiveKGID, c.SavedKGID)
}
