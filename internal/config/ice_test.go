package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseICEServersJSON(t *testing.T) {
	raw := `[
	  {"urls": "stun:stun.example.com:3478"},
	  {"urls": ["turn:turn.example.com:3478?transport=udp", " "], "username": "user", "credential": "pass"}
	]`

	servers, err := ParseICEServersJSON(raw)
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, []string{"stun:stun.example.com:3478"}, servers[0].URLs)
	assert.Equal(t, []string{"turn:turn.example.com:3478?transport=udp"}, servers[1].URLs)
	assert.Equal(t, "user", servers[1].Username)
	assert.Equal(t, "pass", servers[1].Credential)
}

func TestParseICEServersJSONRejects(t *testing.T) {
	for name, raw := range map[string]string{
		"turn without credential": `[{"urls":"turn:turn.example.com","username":"u"}]`,
		"turn without username":   `[{"urls":"turn:turn.example.com","credential":"c"}]`,
		"bad scheme":              `[{"urls":"http://example.com"}]`,
		"no urls":                 `[{"urls":[]}]`,
		"not json":                `stun:stun.example.com`,
	} {
		_, err := ParseICEServersJSON(raw)
		assert.Error(t, err, name)
	}
}

func TestDecodeICEServersFromList(t *testing.T) {
	servers, err := decodeICEServers([]any{
		map[string]any{"urls": []any{"stun:a.example.com", "stun:b.example.com"}},
	})
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, []string{"stun:a.example.com", "stun:b.example.com"}, servers[0].URLs)

	servers, err = decodeICEServers("")
	require.NoError(t, err)
	assert.Empty(t, servers)
}
