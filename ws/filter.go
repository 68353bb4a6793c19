package ws

import (
	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"

	"github.com/justachat/jachat-services/filter"
	"github.com/justachat/jachat-services/globals"
	"github.com/justachat/jachat-services/types"
)

// compileFilter compiles a target filter expression, serving repeated
// expressions from the hub's cache. History replays re-run the same filters
// over and over, compiling them once per hub is enough.
func (h *Hub) compileFilter(targetFilter string) (*vm.Program, error) {
	if cached, ok := h.progCache.Get(targetFilter); ok {
		return cached.(*vm.Program), nil
	}
	prog, err := expr.Compile(targetFilter, expr.Env(filter.Env{}))
	if err != nil {
		return nil, err
	}
	h.progCache.Add(targetFilter, prog)
	return prog, nil
}

// EvaluateFilterEvent reports whether the event should be delivered to this
// client. An empty filter matches everyone, a filter that does not compile
// matches no one.
func (c *Client) EvaluateFilterEvent(event *types.Event) bool {
	if event.TargetFilter == "" {
		return true
	}
	prog, err := c.hub.compileFilter(event.TargetFilter)
	if err != nil {
		globals.AppLogger.Error("could not compile filter", "filter", event.TargetFilter, "error", err)
		return false
	}
	return c.RunFilterEvent(event, prog)
}

func (c *Client) RunFilterEvent(event *types.Event, prog *vm.Program) bool {
	if event == nil {
		return false
	}
	if prog == nil {
		return true
	}
	env := filter.Env{
		Room: filter.Room{
			Id:   c.hub.channel.Id,
			Name: c.hub.channel.Name,
			Tags: c.hub.channel.Tags,
		},
		Source: filter.Source{
			Origin: event.Source.Origin,
		},
		Target: filter.Target{
			User: filter.FromUser(c.user.Id, c.user.Nick, string(c.user.Role), c.user.Language, c.user.Tags, c.user.LastOnline.Unix()),
			Client: filter.Client{
				ClientLanguage: c.Language,
			},
		},
		Created:       event.Created.Unix(),
		Name:          event.Name,
		Tags:          event.Tags,
		AsInt:         filter.AsInt,
		AsFloat:       filter.AsFloat,
		AsStringSlice: filter.AsStringSlice,
		AsIntSlice:    filter.AsIntSlice,
		AsFloatSlice:  filter.AsFloatSlice,
	}
	if owner := c.hub.owner; owner != nil {
		env.Room.Owner = filter.FromUser(owner.Id, owner.Nick, string(owner.Role), owner.Language, owner.Tags, owner.LastOnline.Unix())
	}
	if event.Source.User != nil {
		su := event.Source.User
		env.Source.User = filter.FromUser(su.Id, su.Nick, string(su.Role), su.Language, su.Tags, su.LastOnline.Unix())
	}
	res, err := expr.Run(prog, env)
	if err != nil {
		globals.AppLogger.Error("could not run filter", "filter", event.TargetFilter, "error", err)
		return false
	}
	if bRes, ok := res.(bool); ok && bRes {
		return true
	}
	return false
}
