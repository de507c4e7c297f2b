package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/persona-hq/persona/internal/gateway"
	"github.com/persona-hq/persona/internal/persona"
	"github.com/persona-hq/persona/internal/store"
)

// runCommand executes one registered command. ev.Content carries the
// argument string, already stripped of the command name by the gateway.
func (r *Runtime) runCommand(ctx context.Context, conn gateway.Connection, ev gateway.Event) error {
	switch ev.Command {
	case "ping":
		return conn.Send(ctx, ev.ChannelID, "pong")

	case "help":
		cmds, err := r.resolveCommands(ctx)
		if err != nil {
			return err
		}
		var b strings.Builder
		b.WriteString("Available commands:\n")
		for _, c := range cmds {
			fmt.Fprintf(&b, "  %s - %s\n", c.Name, c.Description)
		}
		return conn.Send(ctx, ev.ChannelID, strings.TrimRight(b.String(), "\n"))

	case "persona":
		return r.cmdPersona(ctx, conn, ev)

	case "forget":
		if err := r.shared.Personas.Forget(ctx, r.key, ev.UserID); err != nil {
			return err
		}
		return conn.Send(ctx, ev.ChannelID, "Persona preference cleared.")

	case "status":
		st := r.State()
		return conn.Send(ctx, ev.ChannelID, fmt.Sprintf("%s: %s", r.identity.Name, st))

	case "version":
		v := r.opts.Version
		if v == "" {
			v = "dev"
		}
		return conn.Send(ctx, ev.ChannelID, v)

	case "uptime":
		r.mu.Lock()
		since := r.connectedAt
		r.mu.Unlock()
		return conn.Send(ctx, ev.ChannelID,
			fmt.Sprintf("connected for %s", time.Since(since).Round(time.Second)))

	case "remind":
		return r.cmdRemind(ctx, conn, ev)

	case "settings":
		return r.cmdSettings(ctx, conn, ev)

	case "set_guild_setting":
		return r.cmdSetGuildSetting(ctx, conn, ev)

	case "toggle":
		return r.cmdToggle(ctx, conn, ev)

	case "introspect":
		return r.cmdIntrospect(ctx, conn, ev)
	}
	return fmt.Errorf("bot: unhandled command %q", ev.Command)
}

// cmdPersona stores the caller's persona override: "persona <name>". Bare
// "persona" lists the choices.
func (r *Runtime) cmdPersona(ctx context.Context, conn gateway.Connection, ev gateway.Event) error {
	name := strings.TrimSpace(ev.Content)
	if name == "" {
		return conn.Send(ctx, ev.ChannelID,
			fmt.Sprintf("Usage: persona <name>. Personas: %s", strings.Join(persona.Names(), ", ")))
	}
	err := r.shared.Personas.Set(ctx, r.key, ev.UserID, name)
	if errors.Is(err, persona.ErrUnknown) {
		return conn.Send(ctx, ev.ChannelID,
			fmt.Sprintf("No persona named %q. Personas: %s", name, strings.Join(persona.Names(), ", ")))
	}
	if err != nil {
		return err
	}
	return conn.Send(ctx, ev.ChannelID, fmt.Sprintf("You now talk to %s.", name))
}

// cmdRemind schedules a reminder: "remind <duration> <message>".
func (r *Runtime) cmdRemind(ctx context.Context, conn gateway.Connection, ev gateway.Event) error {
	args := strings.SplitN(strings.TrimSpace(ev.Content), " ", 2)
	if len(args) < 2 {
		return conn.Send(ctx, ev.ChannelID, "Usage: remind <duration> <message>, e.g. remind 30m stretch")
	}
	d, err := time.ParseDuration(args[0])
	if err != nil || d <= 0 {
		return conn.Send(ctx, ev.ChannelID, fmt.Sprintf("%q is not a valid duration.", args[0]))
	}

	due := time.Now().Add(d)
	id, err := r.shared.Store.AddReminder(ctx, r.key, ev.UserID, ev.ChannelID, args[1], due)
	if err != nil {
		return err
	}
	r.logger.Info("reminder scheduled", "id", id, "due", due)
	return conn.Send(ctx, ev.ChannelID, fmt.Sprintf("Reminder set for %s.", due.Format(time.Kitchen)))
}

// cmdSettings shows one guild setting: "settings <name>".
func (r *Runtime) cmdSettings(ctx context.Context, conn gateway.Connection, ev gateway.Event) error {
	name := strings.TrimSpace(ev.Content)
	if name == "" {
		return conn.Send(ctx, ev.ChannelID, "Usage: settings <name>")
	}
	value, err := r.shared.Store.GuildSetting(ctx, r.key, ev.GuildID, name)
	if errors.Is(err, store.ErrNotFound) {
		return conn.Send(ctx, ev.ChannelID, fmt.Sprintf("%s is not set.", name))
	}
	if err != nil {
		return err
	}
	return conn.Send(ctx, ev.ChannelID, fmt.Sprintf("%s = %s", name, value))
}

// cmdSetGuildSetting writes one guild setting: "set_guild_setting <name> <value>".
func (r *Runtime) cmdSetGuildSetting(ctx context.Context, conn gateway.Connection, ev gateway.Event) error {
	args := strings.SplitN(strings.TrimSpace(ev.Content), " ", 2)
	if len(args) < 2 {
		return conn.Send(ctx, ev.ChannelID, "Usage: set_guild_setting <name> <value>")
	}
	if err := r.shared.Store.SetGuildSetting(ctx, r.key, ev.GuildID, args[0], args[1]); err != nil {
		return err
	}
	return conn.Send(ctx, ev.ChannelID, fmt.Sprintf("%s = %s", args[0], args[1]))
}

// cmdToggle flips a feature flag: "toggle <feature> on|off". The change
// applies on the next connection; registered commands are resolved once
// per session.
func (r *Runtime) cmdToggle(ctx context.Context, conn gateway.Connection, ev gateway.Event) error {
	args := strings.Fields(ev.Content)
	if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
		return conn.Send(ctx, ev.ChannelID, "Usage: toggle <feature> on|off")
	}
	if err := r.shared.Store.SetFeatureEnabled(ctx, r.key, args[0], args[1] == "on"); err != nil {
		return err
	}
	return conn.Send(ctx, ev.ChannelID,
		fmt.Sprintf("Feature %s is now %s. Takes effect on the next reconnect.", args[0], args[1]))
}

// cmdIntrospect dumps the bot's resolved configuration.
func (r *Runtime) cmdIntrospect(ctx context.Context, conn gateway.Connection, ev gateway.Event) error {
	allow := "unrestricted"
	if !r.identity.Unrestricted() {
		allow = strings.Join(r.identity.Commands, ", ")
	}
	def := r.identity.DefaultPersona
	if def == "" {
		def = persona.Fallback
	}
	msg := fmt.Sprintf("name: %s\nguild: %s\nmodel: %s\ndefault persona: %s\nallowlist: %s\nstore key: %s",
		r.identity.Name, r.identity.GuildID,
		r.identity.EffectiveModel(r.opts.GlobalModel), def, allow, r.key)
	return conn.Send(ctx, ev.ChannelID, msg)
}
