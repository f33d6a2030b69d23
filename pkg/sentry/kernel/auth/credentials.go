package auth

import (
	"github.com/mohae/deepcopy"

	"github.com/walteh/tgexec/pkg/abi/linux"
)

// Fork generates an identical copy of a set of credentials.
func (c *Credentials) Fork() *Credentials {
	return deepcopy.Copy(c).(*Credentials)
}

// ApplySetIDBits updates c for the execution of a file with the given mode,
// owner and group, as execve(2) does:
//
//   - S_ISUID makes owner the effective user ID.
//   - S_ISGID makes group the effective group ID.
//   - The saved IDs are always reset to the effective IDs.
//   - KeepCaps is cleared.
//
// It returns true if either set-ID bit changed the effective IDs, in which case
// the caller must clear the process's parent-death signal.
//
// Preconditions: c is not shared with any other task.
func (c *Credentials) ApplySetIDBits(mode uint32, owner KUID, group KGID) bool {
	changed := false
	if mode&linux.S_ISUID != 0 {
		changed = changed || c.EffectiveKUID != owner
		c.EffectiveKUID = owner
	}
	// S_ISGID without group execute marks mandatory locking, not set-group-ID.
	if mode&linux.S_ISGID != 0 && mode&linux.S_IXGRP != 0 {
		changed = changed || c.EffectiveKGID != group
		c.EffectiveKGID = group
	}
	c.SavedKUID = c.EffectiveKUID
	c.SavedKGID = c.EffectiveKGID
	c.KeepCaps = false
	return changed
}
