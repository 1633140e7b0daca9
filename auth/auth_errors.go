package auth

// LogoutReason says why a session ended. It is passed to logout hooks and
// carried on the logout event.
type LogoutReason string

const (
	ReasonUser                LogoutReason = "user"
	ReasonExpired             LogoutReason = "expired"
	ReasonRefreshFailed       LogoutReason = "refresh_failed"
	ReasonRefreshTokenInvalid LogoutReason = "refresh_token_invalid"
)

func (r LogoutReason) message() string {
	switch r {
	case ReasonExpired:
		return "Your session expired after a period of inactivity."
	case ReasonRefreshFailed:
		return "Your session could not be renewed. Please sign in again."
	case ReasonRefreshTokenInvalid:
		return "Your sign-in is no longer valid. Please sign in again."
	default:
		return "You have been signed out."
	}
}
