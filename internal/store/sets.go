package store

import (
	"context"

	"github.com/klubi/rstore/internal/backend"
)

// SetMembership maintains the named collections resources are listed by.
// Members are full record keys, so one set can hold several resource types.
type SetMembership struct {
	be   backend.Backend
	keys Keys
}

// AddMember queues adding the resource to set.
func (s *SetMembership) AddMember(b *Batch, set, resourceType, id string) {
	b.AddMember(s.keys.Key(set), s.keys.record(resourceType, id))
}

// RemoveMember queues removing the resource from set.
func (s *SetMembership) RemoveMember(b *Batch, set, resourceType, id string) {
	b.RemoveMember(s.keys.Key(set), s.keys.record(resourceType, id))
}

// List reads the current members of set with one bulk read. Members whose
// record no longer exists are skipped.
func (s *SetMembership) List(ctx context.Context, set string) ([]Resource, error) {
	members, err := s.be.SMembers(ctx, s.keys.Key(set))
	if err != nil {
		return nil, &BackendError{Op: "smembers", Err: err}
	}
	if len(members) == 0 {
		return []Resource{}, nil
	}

	raws, err := s.be.MGet(ctx, members...)
	if err != nil {
		return nil, &BackendError{Op: "mget", Err: err}
	}

	out := make([]Resource, 0, len(raws))
	for _, raw := range raws {
		if raw == nil {
			continue
		}
		r, err := decodeResource(raw)
		if err != nil {
			return nil, &BackendError{Op: "decode", Err: err}
		}
		out = append(out, r)
	}
	return out, nil
}
