package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"gigboard/internal/admin"
	"gigboard/internal/diag"
	"gigboard/internal/storage"
)

// Definitions returns the application commands this router serves.
func Definitions() []*discordgo.ApplicationCommand {
	channelOpt := func(name, desc string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type: discordgo.ApplicationCommandOptionChannel, Name: name, Description: desc, Required: true,
		}
	}
	categoryOpt := &discordgo.ApplicationCommandOption{
		Type: discordgo.ApplicationCommandOptionString, Name: "category", Description: "Category name or id", Required: true,
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:        "category",
			Description: "Manage gig categories",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "create", Description: "Create a category",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "name", Description: "Category name", Required: true},
						{Type: discordgo.ApplicationCommandOptionBoolean, Name: "approve_mode", Description: "Require moderator approval", Required: false},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "delete", Description: "Delete a category",
					Options: []*discordgo.ApplicationCommandOption{categoryOpt},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "list", Description: "List categories",
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "show", Description: "Show a category's wiring",
					Options: []*discordgo.ApplicationCommandOption{categoryOpt},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "approve-mode", Description: "Toggle approval mode",
					Options: []*discordgo.ApplicationCommandOption{
						categoryOpt,
						{Type: discordgo.ApplicationCommandOptionBoolean, Name: "enabled", Description: "Require approval", Required: true},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "add-target", Description: "Add a posting channel",
					Options: []*discordgo.ApplicationCommandOption{categoryOpt, channelOpt("channel", "Posting channel")},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "remove-target", Description: "Remove a posting channel",
					Options: []*discordgo.ApplicationCommandOption{categoryOpt, channelOpt("channel", "Posting channel")},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "add-report", Description: "Add a report channel",
					Options: []*discordgo.ApplicationCommandOption{categoryOpt, channelOpt("channel", "Report channel")},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "remove-report", Description: "Remove a report channel",
					Options: []*discordgo.ApplicationCommandOption{categoryOpt, channelOpt("channel", "Report channel")},
				},
			},
		},
		{
			Name:        "roles",
			Description: "Bind capability roles",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "add", Description: "Bind a role",
					Options: roleBindingOptions(),
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "remove", Description: "Unbind a role",
					Options: roleBindingOptions(),
				},
			},
		},
		{
			Name:        "policy",
			Description: "Per-channel posting policy",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "expiry", Description: "Set posting lifetime (0 clears)",
					Options: []*discordgo.ApplicationCommandOption{
						channelOpt("channel", "Origin channel"),
						{Type: discordgo.ApplicationCommandOptionInteger, Name: "days", Description: "Days, 0 to clear", Required: true},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "cooldown", Description: "Set posting cooldown (0 clears)",
					Options: []*discordgo.ApplicationCommandOption{
						channelOpt("channel", "Origin channel"),
						{Type: discordgo.ApplicationCommandOptionInteger, Name: "days", Description: "Days, 0 to clear", Required: true},
					},
				},
			},
		},
		{
			Name:        "debugchannel",
			Description: "Manage diagnostics channels",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "add", Description: "Add a diagnostics channel",
					Options: []*discordgo.ApplicationCommandOption{channelOpt("channel", "Diagnostics channel")},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "remove", Description: "Remove a diagnostics channel",
					Options: []*discordgo.ApplicationCommandOption{channelOpt("channel", "Diagnostics channel")},
				},
			},
		},
		{
			Name:        "unbanish",
			Description: "Lift a user's ban",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "User to unban", Required: true},
				{
					Type: discordgo.ApplicationCommandOptionString, Name: "scope", Description: "Which bans to lift", Required: true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "server", Value: string(admin.ScopeServer)},
						{Name: "category", Value: string(admin.ScopeCategory)},
						{Name: "both", Value: string(admin.ScopeBoth)},
					},
				},
				{Type: discordgo.ApplicationCommandOptionString, Name: "category", Description: "Category name or id", Required: false},
			},
		},
		{Name: "health", Description: "Check every configured destination"},
		{Name: "cleanup", Description: "Run the maintenance sweep now"},
	}
}

func roleBindingOptions() []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{
		{
			Type: discordgo.ApplicationCommandOptionString, Name: "kind", Description: "Capability", Required: true,
			Choices: []*discordgo.ApplicationCommandOptionChoice{
				{Name: "moderator", Value: string(storage.RoleModerator)},
				{Name: "creator", Value: string(storage.RoleCreator)},
				{Name: "applicant", Value: string(storage.RoleApplicant)},
				{Name: "direct applicant", Value: string(storage.RoleDirectApplicant)},
			},
		},
		{Type: discordgo.ApplicationCommandOptionRole, Name: "role", Description: "Role to bind", Required: true},
	}
}

// RegisterCommands overwrites the guild's command set.
func (r *Router) RegisterCommands(appID, guildID string) error {
	_, err := r.session.ApplicationCommandBulkOverwrite(appID, guildID, Definitions())
	return err
}

func (r *Router) handleCommand(ctx context.Context, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	switch data.Name {
	case "category":
		r.categoryCommand(ctx, i, data)
	case "roles":
		r.rolesCommand(ctx, i, data)
	case "policy":
		r.policyCommand(ctx, i, data)
	case "debugchannel":
		r.debugChannelCommand(ctx, i, data)
	case "unbanish":
		r.unbanishCommand(ctx, i, data)
	case "health":
		r.healthCommand(ctx, i)
	case "cleanup":
		r.cleanupCommand(ctx, i)
	}
}

func optionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

func (r *Router) categoryCommand(ctx context.Context, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if len(data.Options) == 0 {
		return
	}
	sub := data.Options[0]
	opts := optionMap(sub.Options)
	actor := actorOf(i)

	resolve := func() (storage.Category, bool) {
		cat, err := r.admin.ResolveCategory(ctx, opts["category"].StringValue())
		if err != nil {
			r.replyErr(i, err)
			return storage.Category{}, false
		}
		return cat, true
	}
	channelID := func() string { return opts["channel"].ChannelValue(nil).ID }

	switch sub.Name {
	case "create":
		approve := false
		if o, ok := opts["approve_mode"]; ok {
			approve = o.BoolValue()
		}
		cat, err := r.admin.CreateCategory(ctx, actor, opts["name"].StringValue(), approve)
		if err != nil {
			r.replyErr(i, err)
			return
		}
		r.reply(i, fmt.Sprintf("Category %q created (`%s`).", cat.Name, cat.ID))
	case "delete":
		cat, ok := resolve()
		if !ok {
			return
		}
		if err := r.admin.DeleteCategory(ctx, actor, cat.ID); err != nil {
			r.replyErr(i, err)
			return
		}
		r.reply(i, fmt.Sprintf("Category %q deleted.", cat.Name))
	case "list":
		r.listCategories(ctx, i)
	case "show":
		cat, ok := resolve()
		if !ok {
			return
		}
		r.showCategory(ctx, i, cat)
	case "approve-mode":
		cat, ok := resolve()
		if !ok {
			return
		}
		enabled := opts["enabled"].BoolValue()
		if err := r.admin.SetApproveMode(ctx, actor, cat.ID, enabled); err != nil {
			r.replyErr(i, err)
			return
		}
		r.reply(i, fmt.Sprintf("Approval mode for %q set to %v.", cat.Name, enabled))
	case "add-target", "remove-target", "add-report", "remove-report":
		cat, ok := resolve()
		if !ok {
			return
		}
		var err error
		switch sub.Name {
		case "add-target":
			err = r.admin.AddTarget(ctx, actor, cat.ID, channelID())
		case "remove-target":
			err = r.admin.RemoveTarget(ctx, actor, cat.ID, channelID())
		case "add-report":
			err = r.admin.AddReport(ctx, actor, cat.ID, channelID())
		case "remove-report":
			err = r.admin.RemoveReport(ctx, actor, cat.ID, channelID())
		}
		if err != nil {
			r.replyErr(i, err)
			return
		}
		r.gigs.RefreshPrompts(ctx)
		r.reply(i, fmt.Sprintf("Channel wiring for %q updated.", cat.Name))
	}
}

func (r *Router) listCategories(ctx context.Context, i *discordgo.InteractionCreate) {
	v, err := r.gigs.View(ctx)
	if err != nil {
		r.replyErr(i, err)
		return
	}
	if len(v.Categories) == 0 {
		r.reply(i, "No categories are configured.")
		return
	}
	var b strings.Builder
	for _, cat := range v.Categories {
		mode := "open"
		if cat.ApproveMode {
			mode = "approval"
		}
		fmt.Fprintf(&b, "**%s** (`%s`, %s) targets=%d reports=%d\n",
			cat.Name, cat.ID, mode, len(v.Targets[cat.ID]), len(v.Reports[cat.ID]))
	}
	r.reply(i, b.String())
}

func (r *Router) showCategory(ctx context.Context, i *discordgo.InteractionCreate, cat storage.Category) {
	v, err := r.gigs.View(ctx)
	if err != nil {
		r.replyErr(i, err)
		return
	}
	mode := "open"
	if cat.ApproveMode {
		mode = "approval"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** (`%s`, %s)\n", cat.Name, cat.ID, mode)
	b.WriteString("Targets:")
	for _, ch := range v.Targets[cat.ID] {
		fmt.Fprintf(&b, " <#%s>", ch)
	}
	if len(v.Targets[cat.ID]) == 0 {
		b.WriteString(" none")
	}
	b.WriteString("\nReports:")
	for _, ch := range v.Reports[cat.ID] {
		fmt.Fprintf(&b, " <#%s>", ch)
	}
	if len(v.Reports[cat.ID]) == 0 {
		b.WriteString(" none")
	}
	r.reply(i, b.String())
}

func (r *Router) rolesCommand(ctx context.Context, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if len(data.Options) == 0 {
		return
	}
	sub := data.Options[0]
	opts := optionMap(sub.Options)
	actor := actorOf(i)
	kind := storage.RoleKind(opts["kind"].StringValue())
	roleID := opts["role"].RoleValue(nil, i.GuildID).ID

	var err error
	if sub.Name == "add" {
		err = r.admin.AddRole(ctx, actor, kind, roleID)
	} else {
		err = r.admin.RemoveRole(ctx, actor, kind, roleID)
	}
	if err != nil {
		r.replyErr(i, err)
		return
	}
	r.reply(i, fmt.Sprintf("Role binding for %s updated.", kind))
}

func (r *Router) policyCommand(ctx context.Context, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if len(data.Options) == 0 {
		return
	}
	sub := data.Options[0]
	opts := optionMap(sub.Options)
	actor := actorOf(i)
	channelID := opts["channel"].ChannelValue(nil).ID

	var days *int64
	if v := opts["days"].IntValue(); v > 0 {
		days = &v
	}
	var err error
	if sub.Name == "expiry" {
		err = r.admin.SetChannelExpiry(ctx, actor, channelID, days)
	} else {
		err = r.admin.SetChannelCooldown(ctx, actor, channelID, days)
	}
	if err != nil {
		r.replyErr(i, err)
		return
	}
	if days == nil {
		r.reply(i, fmt.Sprintf("Policy %s for <#%s> cleared.", sub.Name, channelID))
		return
	}
	r.reply(i, fmt.Sprintf("Policy %s for <#%s> set to %d days.", sub.Name, channelID, *days))
}

func (r *Router) debugChannelCommand(ctx context.Context, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if len(data.Options) == 0 {
		return
	}
	sub := data.Options[0]
	opts := optionMap(sub.Options)
	actor := actorOf(i)
	channelID := opts["channel"].ChannelValue(nil).ID

	var err error
	if sub.Name == "add" {
		err = r.admin.AddDiagChannel(ctx, actor, channelID)
	} else {
		err = r.admin.RemoveDiagChannel(ctx, actor, channelID)
	}
	if err != nil {
		r.replyErr(i, err)
		return
	}
	r.reply(i, fmt.Sprintf("Diagnostics channels updated (<#%s>).", channelID))
}

func (r *Router) unbanishCommand(ctx context.Context, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	opts := optionMap(data.Options)
	actor := actorOf(i)
	userID := opts["user"].UserValue(nil).ID
	scope := admin.UnbanScope(opts["scope"].StringValue())

	categoryID := ""
	if o, ok := opts["category"]; ok {
		cat, err := r.admin.ResolveCategory(ctx, o.StringValue())
		if err != nil {
			r.replyErr(i, err)
			return
		}
		categoryID = cat.ID
	}
	removed, err := r.admin.Unbanish(ctx, actor, scope, i.GuildID, categoryID, userID)
	if err != nil {
		r.replyErr(i, err)
		return
	}
	if removed == 0 {
		r.reply(i, "No matching ban entries found.")
		return
	}
	r.reply(i, fmt.Sprintf("Unbanished <@%s> (%d entries removed).", userID, removed))
}

func (r *Router) healthCommand(ctx context.Context, i *discordgo.InteractionCreate) {
	mod, err := r.gigs.IsModerator(ctx, actorOf(i))
	if err != nil {
		r.replyErr(i, err)
		return
	}
	if !mod {
		r.reply(i, "You do not have permission to run health checks.")
		return
	}
	reports, err := r.diag.Sweep(ctx)
	if err != nil {
		r.replyErr(i, err)
		return
	}
	r.reply(i, diag.Format(reports))
}

func (r *Router) cleanupCommand(ctx context.Context, i *discordgo.InteractionCreate) {
	mod, err := r.gigs.IsModerator(ctx, actorOf(i))
	if err != nil {
		r.replyErr(i, err)
		return
	}
	if !mod {
		r.reply(i, "You do not have permission to run the sweep.")
		return
	}
	entry := r.cleanup.Run(ctx)
	r.reply(i, fmt.Sprintf("Sweep finished: %d gigs and %d posted copies removed.",
		entry.DeletedGigs, entry.DeletedInstances))
}
