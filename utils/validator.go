package utils

// ValidatePassword checks a new password against the account policy. The
// upper bound matches the bcrypt input limit; anything longer would be
// silently truncated at hashing time.
func ValidatePassword(password string) (bool, string) {
	if len(password) < 8 {
		return false, "Password must be at least 8 characters"
	}
	if len(password) > 72 {
		return false, "Password must be at most 72 characters"
	}
	return true, ""
}
