package auth

// Known OAuth scopes used by the shiftsync backend.
const (
	ScopeShiftsWrite = "shifts:write"
	ScopeShiftsRead  = "shifts:read"
	ScopeShiftsAdmin = "shifts:admin"
)
