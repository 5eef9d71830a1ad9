package orders

type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
)

// Norm maps an absent status to pending; legacy rows carry NULL.
// pending -> done happens at most once, enforced by the store's
// guarded UPDATE.
func Norm(s Status) Status {
	if s == "" {
		return StatusPending
	}
	return s
}
