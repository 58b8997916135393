package notify

// ValidMobileNumber reports whether s is a well-formed 10-digit local mobile
// number. Common separators (spaces, dashes, dots, parentheses) are ignored;
// anything else, including country-code prefixes, fails validation.
func ValidMobileNumber(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
			if digits > 10 {
				return false
			}
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
			// separator, skip
		default:
			return false
		}
	}
	return digits == 10
}
