package relay

import "github.com/flightdrop/flightdrop/internal/signaling"

// Flight is a short-lived room of peers coordinating one transfer session.
// Membership order is preserved so ownership transfer (when enabled) is
// deterministic: the next-oldest member takes over.
type Flight struct {
	Code           string
	OwnerID        string
	Members        []string
	OwnerConnected bool
}

// AddMember appends id unless it is already present.
func (f *Flight) AddMember(id string) {
	for _, m := range f.Members {
		if m == id {
			return
		}
	}
	f.Members = append(f.Members, id)
}

// RemoveMember deletes id from the member list, keeping order.
func (f *Flight) RemoveMember(id string) {
	for i, m := range f.Members {
		if m == id {
			f.Members = append(f.Members[:i], f.Members[i+1:]...)
			return
		}
	}
}

// HasMember reports whether id is a member of the flight.
func (f *Flight) HasMember(id string) bool {
	for _, m := range f.Members {
		if m == id {
			return true
		}
	}
	return false
}

// Users snapshots the membership for a flightUsers broadcast.
func (f *Flight) Users() signaling.FlightUsersPayload {
	members := make([]string, len(f.Members))
	copy(members, f.Members)
	return signaling.FlightUsersPayload{
		OwnerID:        f.OwnerID,
		Members:        members,
		OwnerConnected: f.OwnerConnected,
	}
}
