// Package navigation decides which route group the user belongs in.
package navigation

import "fmt"

// Route is a navigation target.
type Route string

const (
	RouteOnboarding Route = "/onboarding"
	RouteAuth       Route = "/auth"
	RouteHome       Route = "/home"
)

// Group is a family of screens the user can currently be on.
type Group string

const (
	GroupNone       Group = ""
	GroupOnboarding Group = "onboarding"
	GroupAuth       Group = "auth"
	GroupApp        Group = "app"
)

// GroupOf returns the group a route belongs to.
func GroupOf(r Route) Group {
	switch r {
	case RouteOnboarding:
		return GroupOnboarding
	case RouteAuth:
		return GroupAuth
	case RouteHome:
		return GroupApp
	}
	return GroupNone
}

// ParseGroup maps a group name to a Group. "" and "none" mean no group.
func ParseGroup(name string) (Group, error) {
	switch g := Group(name); g {
	case GroupNone, GroupOnboarding, GroupAuth, GroupApp:
		return g, nil
	case "none":
		return GroupNone, nil
	}
	return GroupNone, fmt.Errorf("unknown navigation group %q", name)
}

// Input is everything the resolver looks at.
type Input struct {
	Ready           bool
	IsOnboarded     bool
	IsAuthenticated bool
	CurrentGroup    Group
}

// Resolve returns the route to redirect to, or false when the user should
// stay where they are. Users on the free tier may stay anywhere in the app.
func Resolve(in Input) (Route, bool) {
	switch {
	case !in.Ready:
		return "", false
	case !in.IsOnboarded:
		return RouteOnboarding, true
	case !in.IsAuthenticated:
		return RouteAuth, true
	case in.CurrentGroup == GroupAuth || in.CurrentGroup == GroupOnboarding:
		return RouteHome, true
	}
	return "", false
}
