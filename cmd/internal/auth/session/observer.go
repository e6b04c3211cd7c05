package session

// Observer receives session lifecycle events. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	SessionCreated()
	SessionsRevoked(reason string, n int)
	RotationResult(result string)
	// Discrepancy records a revocation where the store and the cache did not both succeed.
	Discrepancy(op string)
	CacheRebuilt(n int)
}

// Rotation results reported to Observer.RotationResult.
const (
	RotationOK          = "ok"
	RotationExpired     = "expired"
	RotationInvalid     = "invalid"
	RotationRevoked     = "revoked"
	RotationUserMissing = "user_missing"
	RotationUnavailable = "unavailable"
)

type nopObserver struct{}

func (nopObserver) SessionCreated() {}
func (nopObserver) SessionsRevoked(string, int) {}
func (nopObserver) RotationResult(string) {}
func (nopObserver) Discrepancy(string) {}
func (nopObserver) CacheRebuilt(int) {}
