package domain

// GateStatus is the poll response for a waiting-room member.
// Rank is 1-based within the waiting set; -1 means the member is unknown to
// the gate (never registered, evicted, or already used a one-shot ticket).
type GateStatus struct {
	Active  bool   `json:"active"`
	Rank    int64  `json:"rank"`
	Message string `json:"message"`
}
