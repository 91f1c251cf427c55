package rules

const (
	FreePostLimit = 5
)

// PostQuota returns how many more posts the user may create. Members are
// unlimited and get remaining = -1.
func PostQuota(isMember bool, postCount, freeLimit int) (remaining int, allowed bool) {
	if isMember {
		return -1, true
	}
	if freeLimit <= 0 {
		freeLimit = FreePostLimit
	}
	remaining = freeLimit - postCount
	if remaining < 0 {
		remaining = 0
	}
	return remaining, remaining > 0
}
