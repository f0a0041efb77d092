package herd

import "strings"

// Address identifies a destination on the bus. Agent is always populated;
// Instance and Team are empty when absent from the parsed string.
type Address struct {
	Agent    string
	Instance string
	Team     string
}

// Broadcast agent tokens.
const (
	Anyone   = "@anyone"
	Everyone = "@everyone"
)

// IsBroadcast reports whether the address targets @anyone or @everyone.
func (a Address) IsBroadcast() bool {
	return a.Agent == Anyone || a.Agent == Everyone
}

// Render reconstructs the canonical address string for a.
func (a Address) Render() string {
	var b strings.Builder
	b.WriteString(a.Agent)
	if a.Instance != "" {
		b.WriteByte('.')
		b.WriteString(a.Instance)
	}
	if a.Team != "" {
		b.WriteByte('@')
		b.WriteString(a.Team)
	}
	return b.String()
}

// ParseAddress parses one of the seven address grammars:
//
//	name            agent=name
//	name@team       agent=name, team=team
//	name.inst@team  agent=name, instance=inst, team=team
//	@anyone         agent=@anyone
//	@anyone@team    agent=@anyone, team=team
//	@everyone       agent=@everyone
//	@everyone@team  agent=@everyone, team=team
//
// The grammar is permissive: there are no error returns. Any shape that
// doesn't fit a recognized pattern parses as a bare agent name with no
// team or instance.
func ParseAddress(addr string) Address {
	if strings.HasPrefix(addr, "@") {
		// Broadcast token. Any text after the first '@' that follows the
		// token itself is team scope: "@anyone@team" -> token "@anyone",
		// scope "team".
		rest := addr[1:]
		if idx := strings.Index(rest, "@"); idx >= 0 {
			return Address{Agent: "@" + rest[:idx], Team: rest[idx+1:]}
		}
		return Address{Agent: addr}
	}

	local := addr
	team := ""
	if idx := strings.Index(addr, "@"); idx >= 0 {
		local = addr[:idx]
		team = addr[idx+1:]
	}

	agent := local
	instance := ""
	if idx := strings.Index(local, "."); idx >= 0 {
		agent = local[:idx]
		instance = local[idx+1:]
	}

	return Address{Agent: agent, Instance: instance, Team: team}
}
