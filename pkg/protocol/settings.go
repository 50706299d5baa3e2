package protocol

import (
	"fmt"
	"net/url"
	"strings"
)

// Settings is the read-only configuration surface the coordinator checks
// before registering.
type Settings struct {
	RPCURL       string
	ProgramID    string
	WalletKey    string
	AgentName    string
	Capabilities []string
	AutoRegister bool
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// Validate reports every missing or malformed setting. The returned error
// wraps ErrNotConfigured.
func (s Settings) Validate() error {
	var problems []string

	if s.RPCURL == "" {
		problems = append(problems, "rpc url is empty")
	} else if u, err := url.Parse(s.RPCURL); err != nil || u.Host == "" {
		problems = append(problems, fmt.Sprintf("rpc url %q is malformed", s.RPCURL))
	} else {
		switch u.Scheme {
		case "http", "https", "ws", "wss":
		default:
			problems = append(problems, fmt.Sprintf("rpc url scheme %q is not supported", u.Scheme))
		}
	}

	if s.ProgramID == "" {
		problems = append(problems, "program id is empty")
	} else if !isBase58(s.ProgramID) || len(s.ProgramID) < 32 || len(s.ProgramID) > 44 {
		problems = append(problems, fmt.Sprintf("program id %q is not a base58 address", s.ProgramID))
	}

	if strings.TrimSpace(s.WalletKey) == "" {
		problems = append(problems, "wallet credential is empty")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrNotConfigured, strings.Join(problems, "; "))
	}
	return nil
}

func isBase58(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune(base58Alphabet, r) {
			return false
		}
	}
	return true
}
