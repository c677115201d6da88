package model

// Mode controls who may start a loan.
type Mode string

const (
	// ModeSelfService lets any authenticated user loan an available item.
	ModeSelfService Mode = "self-service"
	// ModeAdminOperated restricts every loan change to admins.
	ModeAdminOperated Mode = "admin-operated"
)

// DefaultMode is the mode at process start.
const DefaultMode = ModeAdminOperated

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeSelfService || m == ModeAdminOperated
}
