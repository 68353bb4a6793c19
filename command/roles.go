package command

import (
	"fmt"
	"strings"

	"github.com/justachat/jachat-services/audit"
	"github.com/justachat/jachat-services/globals"
	"github.com/justachat/jachat-services/policy"
	"github.com/justachat/jachat-services/types"
)

func (d *Dispatcher) setRole(targetId string, role types.Role) error {
	return d.store.SetUserRole(targetId, role)
}

func (d *Dispatcher) auditRoleChange(ctx *types.CommandContext, target *types.User, previous, next types.Role) {
	d.sink.Record(audit.Entry(ctx.Caller.Id, types.ActionChangeRole, target.Id, map[string]interface{}{
		"target_username": target.Nick,
		"previous_role":   string(previous),
		"new_role":        string(next),
	}))
}

func (d *Dispatcher) opCommand(args []string, ctx *types.CommandContext) *types.CommandResult {
	if !policy.CanModerateGlobally(ctx) {
		return failResult("You need moderator privileges to use this command.")
	}
	if len(args) == 0 {
		return failResult("Usage: /op <username>")
	}
	target := d.findUser(args[0])
	if target == nil {
		return notFound(args[0])
	}
	if target.Role == types.RoleOwner || target.Role == types.RoleAdmin {
		return failResult("Cannot change role of admin or owner.")
	}
	if err := d.setRole(target.Id, types.RoleModerator); err != nil {
		globals.AppLogger.Error("could not set role", "target", target.Id, "error", err)
		return failResult("Failed to give operator status.")
	}
	d.auditRoleChange(ctx, target, target.Role, types.RoleModerator)
	return systemResult(fmt.Sprintf("%s has been given moderator status.", target.Nick), true)
}

func (d *Dispatcher) deopCommand(args []string, ctx *types.CommandContext) *types.CommandResult {
	if !policy.CanModerateGlobally(ctx) {
		return failResult("You need moderator privileges to use this command.")
	}
	if len(args) == 0 {
		return failResult("Usage: /deop <username>")
	}
	target := d.findUser(args[0])
	if target == nil {
		return notFound(args[0])
	}
	if target.Role == types.RoleOwner {
		return failResult("Cannot change role of owner.")
	}
	if target.Role == types.RoleAdmin && !ctx.IsOwner() {
		return failResult("Only the owner can demote admins.")
	}
	if err := d.setRole(target.Id, types.RoleUser); err != nil {
		globals.AppLogger.Error("could not set role", "target", target.Id, "error", err)
		return failResult("Failed to remove operator status.")
	}
	d.auditRoleChange(ctx, target, target.Role, types.RoleUser)
	return systemResult(fmt.Sprintf("%s has been demoted to user.", target.Nick), true)
}

func (d *Dispatcher) adminCommand(args []string, ctx *types.CommandContext) *types.CommandResult {
	if !ctx.IsOwner() && !ctx.IsAdmin() {
		return failResult("You need admin privileges to use this command.")
	}
	if len(args) == 0 {
		return failResult("Usage: /admin <username>")
	}
	target := d.findUser(args[0])
	if target == nil {
		return notFound(args[0])
	}
	if !policy.CanChangeRole(ctx, target.Role, types.RoleAdmin) {
		return failResult("Cannot change role of admin or owner.")
	}
	previous := target.Role
	if err := d.setRole(target.Id, types.RoleAdmin); err != nil {
		globals.AppLogger.Error("could not set role", "target", target.Id, "error", err)
		return failResult("Failed to give admin status.")
	}
	d.auditRoleChange(ctx, target, previous, types.RoleAdmin)
	return systemResult(fmt.Sprintf("%s has been promoted to admin.", target.Nick), true)
}

func (d *Dispatcher) deadminCommand(args []string, ctx *types.CommandContext) *types.CommandResult {
	if !ctx.IsOwner() {
		return failResult("Only the owner can demote admins.")
	}
	if len(args) == 0 {
		return failResult("Usage: /deadmin <username>")
	}
	target := d.findUser(args[0])
	if target == nil {
		return notFound(args[0])
	}
	if target.Role != types.RoleAdmin {
		return failResult("User is not an admin.")
	}
	if err := d.setRole(target.Id, types.RoleModerator); err != nil {
		globals.AppLogger.Error("could not set role", "target", target.Id, "error", err)
		return failResult("Failed to demote admin.")
	}
	d.auditRoleChange(ctx, target, types.RoleAdmin, types.RoleModerator)
	return systemResult(fmt.Sprintf("%s has been demoted to moderator.", target.Nick), true)
}

// operCommand grants admin via the shared operator secret. The supplied
// username must match the caller's own current nick, the secret never
// authenticates someone else. Repeating it while already privileged reports
// status without a second grant or audit entry.
func (d *Dispatcher) operCommand(args []string, ctx *types.CommandContext) *types.CommandResult {
	if len(args) < 2 {
		return failResult("Usage: /oper <username> <password>")
	}
	if d.operPassword == "" {
		return failResult("Operator authentication not configured.")
	}
	username := args[0]
	password := strings.Join(args[1:], " ")
	if password != d.operPassword {
		globals.AppLogger.Info("oper auth failed", "user", ctx.Caller.Id)
		return failResult("Invalid operator password.")
	}
	if !strings.EqualFold(username, ctx.Caller.Nick) {
		return failResult("Username does not match your current nick.")
	}
	if ctx.IsOwner() || ctx.IsAdmin() {
		return systemResult(fmt.Sprintf("You already have operator privileges (%s).", ctx.Role), false)
	}
	if err := d.setRole(ctx.Caller.Id, types.RoleAdmin); err != nil {
		globals.AppLogger.Error("could not grant oper status", "user", ctx.Caller.Id, "error", err)
		return failResult("Failed to grant operator status.")
	}
	d.sink.Record(audit.Entry(ctx.Caller.Id, types.ActionOperAuth, ctx.Caller.Id, map[string]interface{}{
		"method":   "password_auth",
		"new_role": string(types.RoleAdmin),
		"username": ctx.Caller.Nick,
	}))
	return systemResult(fmt.Sprintf("*** %s is now an IRC Operator", ctx.Caller.Nick), true)
}

// deoperCommand is the inverse of operCommand. Owners cannot remove their
// own status, a plain user is reported as-is.
func (d *Dispatcher) deoperCommand(args []string, ctx *types.CommandContext) *types.CommandResult {
	if len(args) < 2 {
		return failResult("Usage: /deoper <username> <password>")
	}
	if d.operPassword == "" {
		return failResult("Operator authentication not configured.")
	}
	username := args[0]
	password := strings.Join(args[1:], " ")
	if password != d.operPassword {
		return failResult("Invalid operator password.")
	}
	if !strings.EqualFold(username, ctx.Caller.Nick) {
		return failResult("Username does not match your current nick.")
	}
	if ctx.Role == types.RoleUser {
		return systemResult("You are not currently an operator.", false)
	}
	if ctx.IsOwner() {
		return failResult("Owners cannot remove their own status.")
	}
	previous := ctx.Role
	if err := d.setRole(ctx.Caller.Id, types.RoleUser); err != nil {
		globals.AppLogger.Error("could not remove oper status", "user", ctx.Caller.Id, "error", err)
		return failResult("Failed to remove operator status.")
	}
	d.sink.Record(audit.Entry(ctx.Caller.Id, types.ActionDeoperAuth, ctx.Caller.Id, map[string]interface{}{
		"method":        "password_auth",
		"previous_role": string(previous),
		"new_role":      string(types.RoleUser),
		"username":      ctx.Caller.Nick,
	}))
	return systemResult(fmt.Sprintf("*** %s is no longer an IRC Operator", ctx.Caller.Nick), true)
}
