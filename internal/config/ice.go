package config

import (
	"strings"

	"github.com/cockroachdb/errors"
	jsoniter "github.com/json-iterator/go"
	"github.com/pion/webrtc/v4"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultICEServers are the public STUN servers handed to clients when
// nothing else is configured.
var DefaultICEServers = []map[string]any{
	{"urls": "stun:stun.l.google.com:19302"},
	{"urls": "stun:stun1.l.google.com:19302"},
	{"urls": "stun:stun2.l.google.com:19302"},
	{"urls": "stun:stun3.l.google.com:19302"},
	{"urls": "stun:stun4.l.google.com:19302"},
}

type iceServerEntry struct {
	URLs       stringOrStrings `json:"urls"`
	Username   string          `json:"username,omitempty"`
	Credential string          `json:"credential,omitempty"`
}

type stringOrStrings []string

func (s *stringOrStrings) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*s = []string{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// ParseICEServersJSON parses a JSON list of RTCIceServer entries.
func ParseICEServersJSON(raw string) ([]webrtc.ICEServer, error) {
	var entries []iceServerEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, errors.Wrap(err, "ice servers")
	}

	out := make([]webrtc.ICEServer, 0, len(entries))
	for i, e := range entries {
		urls := make([]string, 0, len(e.URLs))
		for _, u := range e.URLs {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
		server := webrtc.ICEServer{
			URLs:     urls,
			Username: strings.TrimSpace(e.Username),
		}
		if strings.TrimSpace(e.Credential) != "" {
			server.Credential = e.Credential
		}
		if err := validateICEServer(server); err != nil {
			return nil, errors.Wrapf(err, "ice_servers[%d]", i)
		}
		out = append(out, server)
	}
	return out, nil
}

// decodeICEServers accepts what viper hands back for ice_servers: a JSON
// string from the environment or a list decoded from the config file.
func decodeICEServers(raw any) ([]webrtc.ICEServer, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		return ParseICEServersJSON(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrap(err, "ice servers")
		}
		return ParseICEServersJSON(string(b))
	}
}

func validateICEServer(server webrtc.ICEServer) error {
	if len(server.URLs) == 0 {
		return errors.New("missing urls")
	}

	turn := false
	for _, u := range server.URLs {
		switch {
		case strings.HasPrefix(u, "stun:"), strings.HasPrefix(u, "stuns:"):
		case strings.HasPrefix(u, "turn:"), strings.HasPrefix(u, "turns:"):
			turn = true
		default:
			return errors.Newf("unsupported url scheme: %q", u)
		}
	}

	if turn {
		if server.Username == "" {
			return errors.New("turn urls require username")
		}
		if cred, ok := server.Credential.(string); !ok || strings.TrimSpace(cred) == "" {
			return errors.New("turn urls require credential")
		}
	}
	return nil
}
