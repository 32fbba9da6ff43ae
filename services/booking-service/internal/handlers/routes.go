package handlers

import "net/http"

// API groups the service's handlers for mounting on a mux.
type API struct {
	Guard    *Guard
	Auth     *AuthHandler
	Catalog  *CatalogHandler
	Bookings *BookingHandler
	Admin    *AdminHandler
}

func (a API) Mount(mux *http.ServeMux) {
	a.mountAuth(mux)
	a.mountCatalog(mux)
	a.mountAdmin(mux)
}

func (a API) mountAuth(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/auth/register", a.Auth.Register)
	mux.HandleFunc("/api/v1/auth/login", a.Auth.Login)
	mux.HandleFunc("/api/v1/auth/refresh", a.Auth.Refresh)
	mux.HandleFunc("/api/v1/auth/logout", a.Auth.Logout)
	mux.Handle("/api/v1/auth/me", a.Guard.RequireAuth(http.HandlerFunc(a.Auth.Me)))
	mux.HandleFunc("/.well-known/jwks.json", a.Auth.JWKS)
}

func (a API) mountCatalog(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/packages", a.Catalog.Packages)
	mux.Handle("/api/v1/slots", a.Guard.RequireAuth(http.HandlerFunc(a.Catalog.Slots)))
	mux.Handle("/api/v1/bookings", a.Guard.RequireAuth(http.HandlerFunc(a.Bookings.Bookings)))
}

func (a API) mountAdmin(mux *http.ServeMux) {
	mux.Handle("/api/v1/admin/bookings", a.Guard.RequireAdmin(http.HandlerFunc(a.Admin.Bookings)))
	mux.Handle("/api/v1/admin/bookings/status", a.Guard.RequireAdmin(http.HandlerFunc(a.Admin.SetStatus)))
	mux.Handle("/api/v1/admin/audit", a.Guard.RequireAdmin(http.HandlerFunc(a.Admin.Audit)))
}
