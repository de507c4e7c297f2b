// Package command defines the closed set of commands a bot can register
// and the pure allowlist filter applied before registration.
package command

// Command describes one registrable command.
type Command struct {
	Name        string
	Description string

	// AdminOnly restricts invocation to guild administrators. Enforced at
	// dispatch time by the runtime.
	AdminOnly bool

	// Feature names the bot setting that gates this command. Empty means
	// always available. Gated commands are resolved against the store at
	// registration time, not per invocation.
	Feature string
}

// Catalog returns every command the system knows how to serve. The set is
// closed: allowlist entries referencing unknown names simply match nothing.
func Catalog() []Command {
	return []Command{
		{Name: "ping", Description: "Liveness check, replies pong"},
		{Name: "help", Description: "List the commands this bot serves"},
		{Name: "persona", Description: "Choose the persona this bot uses with you"},
		{Name: "forget", Description: "Clear your persona override"},
		{Name: "status", Description: "Bot status and connection state"},
		{Name: "version", Description: "Build version"},
		{Name: "uptime", Description: "Time since this bot connected"},
		{Name: "remind", Description: "Schedule a reminder", Feature: "reminders"},
		{Name: "settings", Description: "Show guild settings", AdminOnly: true},
		{Name: "set_guild_setting", Description: "Change a guild setting", AdminOnly: true},
		{Name: "toggle", Description: "Enable or disable a feature", AdminOnly: true, Feature: "toggles"},
		{Name: "introspect", Description: "Dump this bot's resolved configuration", AdminOnly: true},
	}
}

// Filter returns the commands whose names appear in the allowlist, in
// catalog order. An empty allowlist means unrestricted and returns cmds
// unchanged. Pure.
func Filter(cmds []Command, allowlist []string) []Command {
	if len(allowlist) == 0 {
		return cmds
	}
	allowed := make(map[string]bool, len(allowlist))
	for _, name := range allowlist {
		allowed[name] = true
	}
	out := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		if allowed[c.Name] {
			out = append(out, c)
		}
	}
	return out
}

// Names returns the command names in order.
func Names(cmds []Command) []string {
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = c.Name
	}
	return out
}

// ByName indexes commands for dispatch.
func ByName(cmds []Command) map[string]Command {
	m := make(map[string]Command, len(cmds))
	for _, c := range cmds {
		m[c.Name] = c
	}
	return m
}
