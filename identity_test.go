package supervisor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testPersonas() []Persona {
	return []Persona{
		{Name: "Nova", Username: "nova_bot", FirstName: "Nova", LastName: "Vega"},
		{Name: "Quill", Username: "quill_writes", FirstName: "Quill"},
	}
}

func TestIsAgentIdentityMatchesByUsername(t *testing.T) {
	require.True(t, IsAgentIdentity(testPersonas(), "Nova_Bot", "", ""))
}

func TestIsAgentIdentityMatchesByNameTolerantOfMissingLastName(t *testing.T) {
	require.True(t, IsAgentIdentity(testPersonas(), "", "nova", ""))
	require.True(t, IsAgentIdentity(testPersonas(), "", "quill", "anything"))
}

func TestIsAgentIdentityRejectsMismatchedLastName(t *testing.T) {
	require.False(t, IsAgentIdentity(testPersonas(), "", "nova", "Someone"))
}

func TestIsAgentIdentityRejectsUnknownSender(t *testing.T) {
	require.False(t, IsAgentIdentity(testPersonas(), "random_user", "Random", "User"))
}

func TestIsAgentMessageDelegatesToIdentity(t *testing.T) {
	m := Message{SenderUsername: "quill_writes"}
	require.True(t, IsAgentMessage(testPersonas(), m))
}

func TestDisplayNamePrefersExplicitName(t *testing.T) {
	require.Equal(t, "Nova", DisplayName(Persona{Name: "Nova", Username: "nova_bot"}))
	require.Equal(t, "nova_bot", DisplayName(Persona{Username: "nova_bot"}))
	require.Equal(t, "Nova Vega", DisplayName(Persona{FirstName: "Nova", LastName: "Vega"}))
}
