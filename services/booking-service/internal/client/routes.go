package client

import "github.com/md-rashed-zaman/photobook/services/booking-service/internal/model"

type Route string

const (
	RouteLogin     Route = "/login"
	RouteRegister  Route = "/register"
	RouteDashboard Route = "/dashboard"
	RouteBooking   Route = "/booking"
	RouteAdmin     Route = "/admin"
)

// Resolve returns where a navigation to route lands. Signed-out users may only reach
// login and register; signed-in users reach the dashboard and booking wizard, and the
// admin view only with the admin role. Anything else redirects to the caller's home.
func Resolve(route Route, authenticated bool, role model.Role) Route {
	if !authenticated {
		if route == RouteLogin || route == RouteRegister {
			return route
		}
		return RouteLogin
	}
	switch route {
	case RouteDashboard, RouteBooking:
		return route
	case RouteAdmin:
		if role == model.RoleAdmin {
			return route
		}
	}
	return RouteDashboard
}

// Navigate resolves route against the session's current state.
func (s *Session) Navigate(route Route) Route {
	return Resolve(route, s.Authenticated(), s.Role())
}
