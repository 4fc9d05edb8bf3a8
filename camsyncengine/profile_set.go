package camsyncengine

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/jamesrr39/camsync-app/camsync"
	"github.com/jamesrr39/goutil/errorsx"
)

var (
	ErrProfileNotFound       = errors.New("profile not found")
	ErrBuiltinProfileDeleted = errors.New("built-in profiles can't be deleted")
)

// ProfileSet holds the attribute profiles in memory, seeded with the built-ins
type ProfileSet struct {
	mu       sync.RWMutex
	profiles []*camsync.AttributeProfile
}

func NewProfileSet() *ProfileSet {
	return &ProfileSet{profiles: camsync.BuiltinProfiles()}
}

// Profiles returns copies of all profiles, built-ins first
func (ps *ProfileSet) Profiles() []*camsync.AttributeProfile {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	profiles := make([]*camsync.AttributeProfile, len(ps.profiles))
	for i, profile := range ps.profiles {
		profileCopy := *profile
		profiles[i] = &profileCopy
	}
	return profiles
}

func (ps *ProfileSet) Enabled() []*camsync.AttributeProfile {
	return camsync.EnabledProfiles(ps.Profiles())
}

func (ps *ProfileSet) Get(id string) (*camsync.AttributeProfile, errorsx.Error) {
	for _, profile := range ps.Profiles() {
		if profile.ID == id {
			return profile, nil
		}
	}
	return nil, errorsx.Wrap(ErrProfileNotFound, "id", id)
}

// Add stores a user profile under a new id
func (ps *ProfileSet) Add(profile camsync.AttributeProfile) *camsync.AttributeProfile {
	profile.ID = uuid.New().String()
	profile.Builtin = false

	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.profiles = append(ps.profiles, &profile)
	profileCopy := profile
	return &profileCopy
}

func (ps *ProfileSet) SetEnabled(id string, enabled bool) errorsx.Error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	for _, profile := range ps.profiles {
		if profile.ID == id {
			profile.Enabled = enabled
			return nil
		}
	}
	return errorsx.Wrap(ErrProfileNotFound, "id", id)
}

func (ps *ProfileSet) Delete(id string) errorsx.Error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	for i, profile := range ps.profiles {
		if profile.ID != id {
			continue
		}
		if profile.Builtin {
			return errorsx.Wrap(ErrBuiltinProfileDeleted, "id", id)
		}
		ps.profiles = append(ps.profiles[:i], ps.profiles[i+1:]...)
		return nil
	}
	return errorsx.Wrap(ErrProfileNotFound, "id", id)
}
