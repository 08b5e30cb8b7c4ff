package gig

import (
	"errors"
	"testing"

	"gigboard/internal/storage"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to storage.GigStatus
		ok       bool
	}{
		{storage.GigPending, storage.GigApproved, true},
		{storage.GigPending, statusDeleted, true},
		{storage.GigApproved, statusDeleted, true},
		{storage.GigApproved, storage.GigApproved, false},
		{storage.GigApproved, storage.GigPending, false},
		{statusDeleted, storage.GigApproved, false},
	}
	for _, tc := range cases {
		err := transition(tc.from, tc.to)
		if tc.ok && err != nil {
			t.Fatalf("%s -> %s: unexpected %v", tc.from, tc.to, err)
		}
		if !tc.ok {
			var conflict *ConflictError
			if !errors.As(err, &conflict) {
				t.Fatalf("%s -> %s: want ConflictError, got %v", tc.from, tc.to, err)
			}
		}
	}
}
