package supervisor

import "strings"

// IsAgentMessage reports whether a message was authored by one of the
// configured personas, matched case-insensitively by username or by
// first+last name, tolerant of a missing last name (spec §4.1, §9).
func IsAgentMessage(personas []Persona, m Message) bool {
	return IsAgentIdentity(personas, m.SenderUsername, m.SenderFirstName, m.SenderLastName)
}

// IsAgentIdentity is the underlying pure match used by IsAgentMessage and by
// reaction-user filtering (only agent display names survive into Reaction.Users).
func IsAgentIdentity(personas []Persona, username, firstName, lastName string) bool {
	username = strings.ToLower(strings.TrimSpace(username))
	firstName = strings.ToLower(strings.TrimSpace(firstName))
	lastName = strings.ToLower(strings.TrimSpace(lastName))

	for _, p := range personas {
		if username != "" && strings.EqualFold(strings.TrimSpace(p.Username), username) {
			return true
		}
		pFirst := strings.ToLower(strings.TrimSpace(p.FirstName))
		pLast := strings.ToLower(strings.TrimSpace(p.LastName))
		if pFirst == "" {
			continue
		}
		if pFirst != firstName {
			continue
		}
		// Tolerant of missing last name on either side.
		if pLast == "" || lastName == "" || pLast == lastName {
			return true
		}
	}
	return false
}

// DisplayName resolves the name used to key agents_recent_actions and to
// render "(Agent)"/"(YOU)" annotations in prompts.
func DisplayName(p Persona) string {
	if p.Name != "" {
		return p.Name
	}
	if p.Username != "" {
		return p.Username
	}
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}
